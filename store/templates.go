// Package store persists templates, their zone and variable sets, and filled
// artifacts.
//
// Templates live flat in a documents root. Zone sets are kept as indented
// JSON in zones/<template>.json and variable sets in
// variables/<template>.json under the same root.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/lvillar/docfill"
)

const (
	zonesDir     = "zones"
	variablesDir = "variables"
)

// Templates is the documents root.
type Templates struct {
	root string
}

// NewTemplates opens the documents root at dir, creating it and its zones and
// variables directories as needed.
func NewTemplates(dir string) (*Templates, error) {
	for _, d := range []string{dir, filepath.Join(dir, zonesDir), filepath.Join(dir, variablesDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", d, err)
		}
	}
	return &Templates{root: dir}, nil
}

// Root returns the documents directory.
func (t *Templates) Root() string { return t.root }

// Save stores a template under its original name, replacing any previous file
// of the same name.
func (t *Templates) Save(name string, data []byte) error {
	if err := docfill.ValidateName(name); err != nil {
		return err
	}
	return writeFile(filepath.Join(t.root, name), data)
}

// List returns the stored PDF and HTML template names, sorted.
func (t *Templates) List() ([]string, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, fmt.Errorf("store: listing templates: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || docfill.KindOf(e.Name()) == docfill.TemplateUnknown {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the bytes of a stored template. The name is validated before
// the file system is touched; a missing file wraps docfill.ErrNotFound.
func (t *Templates) Read(name string) ([]byte, error) {
	if err := docfill.ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(t.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, docfill.NotFoundf("template %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading template %s: %w", name, err)
	}
	return data, nil
}

// ZoneSet loads the zones saved for a template. found is false when none were
// saved; the returned set is then empty.
func (t *Templates) ZoneSet(name string) (set docfill.ZoneSet, found bool, err error) {
	set = docfill.ZoneSet{TemplateName: name, Zones: []docfill.Zone{}}
	found, err = t.readSet(zonesDir, name, &set)
	if set.Zones == nil {
		set.Zones = []docfill.Zone{}
	}
	return set, found, err
}

// SaveZones validates and stores a zone set.
func (t *Templates) SaveZones(set docfill.ZoneSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if set.Zones == nil {
		set.Zones = []docfill.Zone{}
	}
	return t.writeSet(zonesDir, set.TemplateName, set)
}

// VariableSet loads the variables saved for an HTML template.
func (t *Templates) VariableSet(name string) (set docfill.VariableSet, found bool, err error) {
	set = docfill.VariableSet{TemplateName: name, Variables: []docfill.Variable{}}
	found, err = t.readSet(variablesDir, name, &set)
	if set.Variables == nil {
		set.Variables = []docfill.Variable{}
	}
	return set, found, err
}

// SaveVariables validates and stores a variable set.
func (t *Templates) SaveVariables(set docfill.VariableSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if set.Variables == nil {
		set.Variables = []docfill.Variable{}
	}
	return t.writeSet(variablesDir, set.TemplateName, set)
}

func (t *Templates) readSet(dir, name string, v any) (bool, error) {
	if err := docfill.ValidateName(name); err != nil {
		return false, err
	}
	data, err := os.ReadFile(filepath.Join(t.root, dir, name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: reading %s for %s: %w", dir, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decoding %s for %s: %w", dir, name, err)
	}
	return true, nil
}

func (t *Templates) writeSet(dir, name string, v any) error {
	if err := docfill.ValidateName(name); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s for %s: %w", dir, name, err)
	}
	return writeFile(filepath.Join(t.root, dir, name+".json"), data)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: writing %s: %w", path, err)
	}
	return nil
}
