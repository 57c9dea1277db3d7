package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvillar/docfill/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: list_templates, get_zones, get_variables, list_form_fields,
fill_pdf_form, fill_pdf_zones, fill_html, fill_html_auto.
Resources: docfill://templates, docfill://zones?template=...,
docfill://variables?template=...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.close(context.Background(), logger)

			s := mcp.NewServer(os.Stdin, os.Stdout, logger.Named("mcp"))
			s.SetVersion(Version)
			mcp.RegisterTools(s, d.fills)
			mcp.RegisterResources(s, d.fills)
			return s.Run(ctx)
		},
	}
}
