// Package disk implements ports.Disk against the real filesystem, and
// exposes a thin adapter down to the narrower domain.Disk interface the
// dirty scanner uses.
package disk

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/core/ports"
)

var _ ports.Disk = (*OSDisk)(nil)

// OSDisk implements ports.Disk against the local filesystem.
type OSDisk struct{}

// New creates an OSDisk.
func New() *OSDisk {
	return &OSDisk{}
}

// Stat returns path's mtime as a Unix timestamp, 0 if absent, -1 on error.
func (d *OSDisk) Stat(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, nil //nolint:nilerr // a stat failure is reported via the -1 sentinel, not an error return
	}
	return info.ModTime().Unix(), nil
}

// ReadFile reads path, classifying the result per ports.ReadStatus.
func (d *OSDisk) ReadFile(path string) ([]byte, ports.ReadStatus, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is controlled by the build graph
	if err == nil {
		return data, ports.ReadOkay, nil
	}
	if os.IsNotExist(err) {
		return nil, ports.ReadNotFound, nil
	}
	return nil, ports.ReadOtherError, err
}

// WriteFile writes data to path, creating the file if absent.
func (d *OSDisk) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644) //nolint:gosec // build outputs are not secrets
}

// MakeDir creates path if it does not already exist.
func (d *OSDisk) MakeDir(path string) error {
	err := os.Mkdir(path, 0o755)
	if err != nil && errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

// MakeDirs creates every missing parent directory of path; path itself is
// not created.
func (d *OSDisk) MakeDirs(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// RemoveFile removes path, classifying the result per ports.RemoveStatus.
func (d *OSDisk) RemoveFile(path string) ports.RemoveStatus {
	err := os.Remove(path)
	if err == nil {
		return ports.RemoveOkay
	}
	if os.IsNotExist(err) {
		return ports.RemoveMissing
	}
	return ports.RemoveError
}

// FileLoader implements parser.Loader against the local filesystem, for
// resolving "include" and "subninja" statements relative to the working
// directory the parse started in.
type FileLoader struct{}

// Load reads path from disk.
func (FileLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // path comes from the manifest's own include/subninja statement
}

// DomainView adapts a ports.Disk down to the narrower domain.Disk the dirty
// scanner depends on, so the domain package never imports ports.
type DomainView struct {
	Disk ports.Disk
}

var _ domain.Disk = DomainView{}

// Stat forwards to the underlying ports.Disk.
func (v DomainView) Stat(path string) (int64, error) {
	return v.Disk.Stat(path)
}

// ReadFile forwards to the underlying ports.Disk, collapsing ReadStatus
// into a plain error for the dirty scan's "unreadable depfile means dirty"
// rule.
func (v DomainView) ReadFile(path string) ([]byte, error) {
	data, status, err := v.Disk.ReadFile(path)
	if status != ports.ReadOkay {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("file not found: " + path)
	}
	return data, nil
}
