package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/recon-armada/internal/config"
)

var _ config.RulesLoader = (*FileLoader)(nil)

// FileLoader loads expansion and classifier rules from a YAML file on disk.
type FileLoader struct {
	// path is the filesystem path to the rules file.
	path string
}

// NewFileLoader creates a new FileLoader for the rules file at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the rules file. Unknown fields are rejected so a misspelled
// key does not silently disable a rule.
func (l *FileLoader) Load(ctx context.Context) (*config.Rules, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var rules config.Rules
	if err := dec.Decode(&rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", l.path, err)
	}
	return &rules, nil
}
