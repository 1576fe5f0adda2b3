// Package artifact persists generated report bodies.
//
// Every report is written under a per-request location derived only from the
// request identifier and the report kind, so the same pair always maps to the
// same artifact.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ledgerreports/internal/core"
)

// Store writes a report body and returns where it was written.
type Store interface {
	Write(ctx context.Context, requestID string, kind core.Kind, body []byte) (string, error)
}

// ObjectName is the slash-separated relative name of a report artifact.
func ObjectName(requestID string, kind core.Kind) string {
	return path.Join(requestID, kind.FileName())
}

func validate(requestID string, kind core.Kind) error {
	if strings.TrimSpace(requestID) == "" {
		return core.ErrEmptyRequestID
	}
	if strings.ContainsAny(requestID, `/\`) || requestID == "." || requestID == ".." {
		return fmt.Errorf("invalid request id %q", requestID)
	}
	return kind.Validate()
}

// FileStore writes artifacts below Root as <root>/<requestId>/<kind file>.
type FileStore struct {
	Root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Path returns the file path of the artifact for (requestID, kind).
func (s *FileStore) Path(requestID string, kind core.Kind) string {
	return filepath.Join(s.Root, requestID, kind.FileName())
}

// Write replaces the artifact atomically: the body goes to a temp file in the
// same directory which is then renamed over the target.
func (s *FileStore) Write(_ context.Context, requestID string, kind core.Kind, body []byte) (string, error) {
	if err := validate(requestID, kind); err != nil {
		return "", err
	}

	target := s.Path(requestID, kind)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+kind.FileName()+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename report: %w", err)
	}

	return target, nil
}
