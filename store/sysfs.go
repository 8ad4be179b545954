package store

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MountPoint is the prefix of absolute sysfs paths as callers send them.
const MountPoint = "/sys"

// Sysfs reads and writes device nodes below a root directory that holds the
// sysfs tree. Paths are given as on the device ("/sys/class/display/mode"):
// the MountPoint prefix maps onto the root, relative paths are taken from the
// root, and any other absolute path is rejected.
type Sysfs struct {
	root string
}

func NewSysfs(root string) *Sysfs {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		resolved = MountPoint
	}
	return &Sysfs{root: resolved}
}

func (s *Sysfs) Root() string {
	return s.root
}

// Read returns the node's content with one trailing newline removed.
func (s *Sysfs) Read(path string) (string, error) {
	p, err := s.resolvePath(path)
	if err != nil {
		return "", err
	}
	out, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

// Write replaces the node's content. Nodes are never created.
func (s *Sysfs) Write(path, value string) error {
	p, err := s.resolvePath(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Sysfs) resolvePath(pathArg string) (string, error) {
	rel := strings.TrimSpace(pathArg)
	if rel == "" {
		return "", fmt.Errorf("store: missing sysfs path")
	}
	if strings.HasPrefix(rel, "/") {
		clean := path.Clean(rel)
		if clean != MountPoint && !strings.HasPrefix(clean, MountPoint+"/") {
			return "", fmt.Errorf("%w: %q", ErrPathEscapes, pathArg)
		}
		rel = strings.TrimPrefix(clean, MountPoint)
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	p := filepath.Join(root, strings.TrimLeft(rel, "/"))
	if !isWithin(p, root) || p == root {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, pathArg)
	}
	return p, nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	if r == string(os.PathSeparator) {
		return strings.HasPrefix(p, r)
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
