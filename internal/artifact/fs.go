package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FS writes artifacts to <dir>/<runID>/<name>. Each Put also refreshes
// <dir>/<name>, so the latest artifacts sit at fixed paths.
type FS struct {
	dir string
}

// NewFS returns a filesystem sink rooted at dir.
func NewFS(dir string) *FS {
	if dir == "" {
		dir = "results"
	}
	return &FS{dir: dir}
}

func (f *FS) Put(_ context.Context, runID, name string, data []byte) error {
	if err := checkComponents(runID, name); err != nil {
		return err
	}
	runDir := filepath.Join(f.dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create %s", runDir)
	}
	for _, path := range []string{
		filepath.Join(runDir, name),
		filepath.Join(f.dir, name),
	} {
		if err := writeAtomic(path, data); err != nil {
			return err
		}
	}
	zap.L().Debug("artifact: written",
		zap.String("run_id", runID),
		zap.String("name", name),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (f *FS) Get(_ context.Context, runID, name string) ([]byte, error) {
	if err := checkComponents(runID, name); err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, runID, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "%s/%s", runID, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	return data, nil
}

// writeAtomic writes through a temp file and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "artifact: temp file for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "artifact: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "artifact: close %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "artifact: rename %s", path)
}

// checkComponent rejects names that would escape the sink directory.
func checkComponent(c string) error {
	if c == "" || c == "." || c == ".." || strings.ContainsAny(c, `/\`) {
		return eris.Errorf("artifact: invalid path component %q", c)
	}
	return nil
}

func checkComponents(cs ...string) error {
	for _, c := range cs {
		if err := checkComponent(c); err != nil {
			return err
		}
	}
	return nil
}
