// Package patch rewrites release files in place, substituting the version tag
// for a placeholder token.
package patch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// DefaultPlaceholder is the token replaced when none is configured.
const DefaultPlaceholder = "__IMAGE_TAG__"

// Result describes one placeholder substitution.
type Result struct {
	Path         string `json:"path" yaml:"path"`
	Token        string `json:"token" yaml:"token"`
	Value        string `json:"value" yaml:"value"`
	Replacements int    `json:"replacements" yaml:"replacements"`
}

// Changed reports whether the file was rewritten.
func (r *Result) Changed() bool {
	return r != nil && r.Replacements > 0
}

// ReplacePlaceholder replaces every occurrence of token in the file at path
// with value. A file without the token is left untouched and reported with
// zero replacements. The file keeps its permissions.
func ReplacePlaceholder(path, token, value string) (*Result, error) {
	if token == "" {
		return nil, errors.NewConfigInvalidError("publish.placeholder", "must not be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to stat %s", path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}

	result := &Result{Path: path, Token: token, Value: value}
	result.Replacements = bytes.Count(data, []byte(token))
	if result.Replacements == 0 {
		return result, nil
	}

	patched := bytes.ReplaceAll(data, []byte(token), []byte(value))
	if err := writeAtomic(path, patched, info.Mode().Perm()); err != nil {
		return nil, errors.NewFileWriteError(path, err)
	}
	return result, nil
}

// writeAtomic replaces path through a temporary file in the same directory.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
