// Package suite loads test suite definitions from YAML, searching an
// optional external directory first and falling back to the built-in suites
// embedded in the binary.
package suite

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unamentis/latency-harness/internal/model"
)

//go:embed builtin
var builtinSuites embed.FS

// Load loads a suite definition by ID, searching first in the external
// directory (if provided), then in the embedded built-in suites. The loaded
// definition is validated before being returned.
func Load(id string, externalDir string) (*model.TestSuiteDefinition, error) {
	if externalDir != "" {
		path := filepath.Join(externalDir, id+".yaml")
		if data, err := os.ReadFile(path); err == nil {
			return parse(data, id)
		}
	}

	data, err := fs.ReadFile(builtinSuites, "builtin/"+id+".yaml")
	if err != nil {
		return nil, fmt.Errorf("test suite %q not found: %w", id, err)
	}
	return parse(data, id)
}

// List returns the IDs of all available suites, built-in and external,
// sorted alphabetically.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	entries, err := fs.ReadDir(builtinSuites, "builtin")
	if err == nil {
		for _, e := range entries {
			if id, ok := suiteID(e.Name()); ok {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err == nil {
			for _, e := range entries {
				if id, ok := suiteID(e.Name()); ok && !seen[id] {
					ids = append(ids, id)
				}
			}
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// LoadAll loads every available suite. Suites that fail to parse or validate
// are skipped and reported in the returned error map.
func LoadAll(externalDir string) ([]*model.TestSuiteDefinition, map[string]error) {
	ids, _ := List(externalDir)
	var suites []*model.TestSuiteDefinition
	failures := make(map[string]error)
	for _, id := range ids {
		def, err := Load(id, externalDir)
		if err != nil {
			failures[id] = err
			continue
		}
		suites = append(suites, def)
	}
	return suites, failures
}

func parse(data []byte, id string) (*model.TestSuiteDefinition, error) {
	var def model.TestSuiteDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse suite %q: %w", id, err)
	}
	if def.ID == "" {
		def.ID = id
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// IsBuiltin reports whether a suite ID names one of the embedded built-in
// suites. Built-in suites cannot be deleted through the API.
func IsBuiltin(id string) bool {
	_, err := fs.Stat(builtinSuites, "builtin/"+id+".yaml")
	return err == nil
}

func suiteID(filename string) (string, bool) {
	if !strings.HasSuffix(filename, ".yaml") {
		return "", false
	}
	return strings.TrimSuffix(filename, ".yaml"), true
}
