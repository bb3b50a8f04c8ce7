package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"jobsync-engine/internal/domain"
)

// ErrDuplicateSource is returned by AddSource when the name is taken.
var ErrDuplicateSource = errors.New("config: source name already exists")

// AddSource validates d and appends it to the sources file at path, creating
// the file if needed. Entries already in the file are kept as written.
func AddSource(path string, d domain.SourceDescriptor) error {
	d = normalizeSource(d)
	if err := validate.Struct(d); err != nil {
		return errors.Newf("invalid source: %s", sourceProblem(err))
	}

	var existing []domain.SourceDescriptor
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return errors.Wrapf(err, "read sources file %s", path)
	case strings.TrimSpace(string(b)) != "":
		if err := yaml.Unmarshal(b, &existing); err != nil {
			return errors.Wrapf(ErrInvalidSourcesFile, "%s: %v", path, err)
		}
	}

	for _, e := range existing {
		if strings.TrimSpace(e.Name) == d.Name {
			return errors.Wrapf(ErrDuplicateSource, "%q", d.Name)
		}
	}
	return SaveSourcesAtomic(path, append(existing, d))
}

// SaveSourcesAtomic writes sources to path through a temp file, keeping the
// previous version as path.bak. A .json path is written as JSON, anything
// else as YAML.
func SaveSourcesAtomic(path string, sources []domain.SourceDescriptor) error {
	var (
		b   []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err = json.MarshalIndent(sources, "", "  ")
		b = append(b, '\n')
	} else {
		b, err = yaml.Marshal(sources)
	}
	if err != nil {
		return errors.Wrap(err, "encode sources")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create sources dir")
	}

	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "write sources")
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replace sources file")
	}
	return nil
}
