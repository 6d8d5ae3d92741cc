// Package capture writes actor screenshots into the latest/reference/diff
// tree the regression pass reads.
package capture

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Namespaces of the screenshot tree.
const (
	Latest    = "latest"
	Reference = "reference"
	Diff      = "diff"
)

// Artifact is one stored screenshot.
type Artifact struct {
	Actor      string    `json:"actor"`
	Tag        string    `json:"tag"`
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
}

// Key identifies an artifact across namespaces.
func (a Artifact) Key() string { return a.Actor + "/" + a.Tag }

// IOError wraps filesystem failures while storing or promoting captures.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("capture: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store lays screenshots out as <Root>/<namespace>/<actor>/<tag>.png.
type Store struct {
	Root string
}

// Path returns the file path for (namespace, actor, tag).
func (s Store) Path(ns, actor, tag string) string {
	return filepath.Join(s.Root, ns, clean(actor), clean(tag)+".png")
}

// clean keeps names inside their directory.
func clean(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, `\`, "_")
	if name == "." || name == ".." || name == "" {
		return "_"
	}
	return name
}

// Write stores data under (ns, actor, tag), creating directories.
func (s Store) Write(ns, actor, tag string, data []byte) (Artifact, error) {
	path := s.Path(ns, actor, tag)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Artifact{}, &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, &IOError{Op: "write", Path: path, Err: err}
	}
	return Artifact{Actor: actor, Tag: tag, Path: path, CapturedAt: time.Now().UTC()}, nil
}

// List returns every artifact in ns sorted by actor then tag. A missing
// namespace directory yields an empty list.
func (s Store) List(ns string) ([]Artifact, error) {
	dir := filepath.Join(s.Root, ns)
	var out []Artifact
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".png" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Artifact{
			Actor:      parts[0],
			Tag:        strings.TrimSuffix(parts[1], ".png"),
			Path:       path,
			CapturedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "list", Path: dir, Err: err}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Actor != out[j].Actor {
			return out[i].Actor < out[j].Actor
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

// Promote copies a latest capture over its reference baseline.
func (s Store) Promote(actor, tag string) (Artifact, error) {
	src := s.Path(Latest, actor, tag)
	dst := s.Path(Reference, actor, tag)
	if err := copyFile(src, dst); err != nil {
		return Artifact{}, err
	}
	return Artifact{Actor: actor, Tag: tag, Path: dst, CapturedAt: time.Now().UTC()}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return &IOError{Op: "create", Path: tmp, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return &IOError{Op: "copy", Path: tmp, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "close", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return &IOError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

// Reset removes every artifact in ns.
func (s Store) Reset(ns string) error {
	dir := filepath.Join(s.Root, ns)
	if err := os.RemoveAll(dir); err != nil {
		return &IOError{Op: "reset", Path: dir, Err: err}
	}
	return nil
}
