// Command docfill serves the template-filling API and MCP server.
//
// # Installation
//
//	go install github.com/lvillar/docfill/cmd/docfill@latest
//
// # Usage
//
//	docfill serve --config docfill.yaml
//	docfill mcp
//	docfill version
package main

import (
	"os"

	"github.com/lvillar/docfill/cmd/docfill/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
