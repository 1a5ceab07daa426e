package export

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	defaultDirPerm  os.FileMode = 0o755
	defaultFilePerm os.FileMode = 0o644
)

// OutputOpener opens the destination of one export.
type OutputOpener interface {
	Open(path string, overwrite, createParentDir bool) (io.WriteCloser, error)
}

// FilePreparer validates the target path and creates a fresh output file.
type FilePreparer struct {
	Logger   Logger
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// Prepare resolves the parent directory and returns a brand-new empty file.
// An existing file is removed when overwrite is set and rejected otherwise.
func (p FilePreparer) Prepare(path string, overwrite, createParentDir bool) (*os.File, error) {
	logger := p.logger()
	if path == "" {
		return nil, NewError(KindConfiguration, "output path is required", nil)
	}

	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, NewError(KindIO, fmt.Sprintf("parent %q is not a directory", parent), nil)
		}
	case errors.Is(err, fs.ErrNotExist):
		if !createParentDir {
			return nil, NewError(KindMissingParentDir, fmt.Sprintf("parent directory %q does not exist", parent), nil)
		}
		if err := os.MkdirAll(parent, p.dirPerm()); err != nil {
			return nil, NewError(KindIO, fmt.Sprintf("create parent directory %q", parent), err)
		}
		logger.Infof("created directory %s", parent)
	default:
		return nil, NewError(KindIO, fmt.Sprintf("stat parent directory %q", parent), err)
	}

	if _, err := os.Lstat(path); err == nil {
		if !overwrite {
			return nil, NewError(KindFileExists, fmt.Sprintf("file %q already exists", path), nil)
		}
		logger.Warnf("file %s exists, overwriting", path)
		if err := os.Remove(path); err != nil {
			return nil, NewError(KindIO, fmt.Sprintf("remove existing file %q", path), err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, NewError(KindIO, fmt.Sprintf("stat %q", path), err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, p.filePerm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, NewError(KindFileExists, fmt.Sprintf("file %q already exists", path), err)
		}
		return nil, NewError(KindIO, fmt.Sprintf("create file %q", path), err)
	}
	logger.Infof("created file %s", path)
	return file, nil
}

// Open implements OutputOpener.
func (p FilePreparer) Open(path string, overwrite, createParentDir bool) (io.WriteCloser, error) {
	file, err := p.Prepare(path, overwrite, createParentDir)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (p FilePreparer) logger() Logger {
	if p.Logger == nil {
		return NopLogger{}
	}
	return p.Logger
}

func (p FilePreparer) dirPerm() os.FileMode {
	if p.DirPerm == 0 {
		return defaultDirPerm
	}
	return p.DirPerm
}

func (p FilePreparer) filePerm() os.FileMode {
	if p.FilePerm == 0 {
		return defaultFilePerm
	}
	return p.FilePerm
}
