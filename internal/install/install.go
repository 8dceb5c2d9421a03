// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package install replaces a destination subtree with a new set of files.
//
// The new tree is first staged in a temporary sibling of the destination
// and then swapped into place, so a run that fails before Commit leaves the
// previous installation untouched. After Commit the destination holds
// exactly the staged files.
package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/goplus/upsync/internal/fault"
)

// Mapping copies Src, relative to a source root, to Dst, relative to the
// destination subtree. Both are slash-separated.
type Mapping struct {
	Src string
	Dst string
}

func (m Mapping) String() string {
	return m.Src + " -> " + m.Dst
}

// Check reports the first mapping whose paths are not local or whose
// destination repeats an earlier one.
func Check(mappings []Mapping) error {
	seen := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if !localSlash(m.Src) {
			return fault.Errorf(fault.Layout, "map", m.Src, "source path is not local")
		}
		if !localSlash(m.Dst) {
			return fault.Errorf(fault.Layout, "map", m.Dst, "destination path is not local")
		}
		dst := path.Clean(m.Dst)
		if prev, ok := seen[dst]; ok {
			return fault.Errorf(fault.Layout, "map", m.Dst, "destination also mapped from %s", prev)
		}
		seen[dst] = m.Src
	}
	return nil
}

func localSlash(p string) bool {
	return p != "" && path.Clean(p) != "." && filepath.IsLocal(filepath.FromSlash(p))
}

// Staging is a staged replacement for a destination subtree.
type Staging struct {
	dest  string
	dir   string
	files []string
	done  bool
}

// Stage copies every mapping from srcRoot into a new staging directory next
// to dest. Parent directories are created as needed and file modes are kept,
// except that staged files are always writable by their owner so they can
// be rewritten in place.
// A copy failure discards the staging directory and returns a Filesystem
// fault; dest is not touched.
func Stage(dest, srcRoot string, mappings []Mapping) (*Staging, error) {
	if err := Check(mappings); err != nil {
		return nil, err
	}
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fault.New(fault.Filesystem, "mkdir", parent, err)
	}
	dir, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".stage-")
	if err != nil {
		return nil, fault.New(fault.Filesystem, "stage", dest, err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		os.RemoveAll(dir)
		return nil, fault.New(fault.Filesystem, "stage", dest, err)
	}

	s := &Staging{dest: dest, dir: dir}
	for _, m := range mappings {
		src := filepath.Join(srcRoot, filepath.FromSlash(m.Src))
		dst := filepath.Join(dir, filepath.FromSlash(m.Dst))
		if err := copyFile(src, dst); err != nil {
			s.Discard()
			return nil, fault.New(fault.Filesystem, "copy", src, err)
		}
		s.files = append(s.files, path.Clean(m.Dst))
	}
	return s, nil
}

// Dest returns the destination subtree.
func (s *Staging) Dest() string { return s.dest }

// Dir returns the staging directory.
func (s *Staging) Dir() string { return s.dir }

// Files returns the staged destination paths in mapping order.
func (s *Staging) Files() []string { return s.files }

// Path returns the staged location of the destination path dst.
func (s *Staging) Path(dst string) string {
	return filepath.Join(s.dir, filepath.FromSlash(dst))
}

// Commit swaps the staged tree into the destination and deletes the tree it
// replaces. A missing destination is simply created.
func (s *Staging) Commit() error {
	if s.done {
		return errors.New("install: staging already committed or discarded")
	}
	s.done = true

	if _, err := os.Lstat(s.dest); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(s.dir, s.dest); err != nil {
			os.RemoveAll(s.dir)
			return fault.New(fault.Filesystem, "commit", s.dest, err)
		}
		return nil
	} else if err != nil {
		os.RemoveAll(s.dir)
		return fault.New(fault.Filesystem, "commit", s.dest, err)
	}

	old, err := exchange(s.dir, s.dest)
	if err != nil {
		os.RemoveAll(s.dir)
		return fault.New(fault.Filesystem, "commit", s.dest, err)
	}
	if err := os.RemoveAll(old); err != nil {
		return fault.New(fault.Filesystem, "remove previous tree", old, err)
	}
	return nil
}

// Discard removes the staging directory. It is a no-op after Commit.
func (s *Staging) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	return os.RemoveAll(s.dir)
}

// Replace stages mappings and commits them into dest. It returns the
// installed destination paths.
func Replace(dest, srcRoot string, mappings []Mapping) ([]string, error) {
	s, err := Stage(dest, srcRoot, mappings)
	if err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	return s.Files(), nil
}

// renameAside moves dest out of the way, moves staged into its place and
// returns where the previous tree went. If the second rename fails the
// previous tree is moved back.
func renameAside(staged, dest string) (string, error) {
	old := staged + ".old"
	if err := os.Rename(dest, old); err != nil {
		return "", err
	}
	if err := os.Rename(staged, dest); err != nil {
		if rerr := os.Rename(old, dest); rerr != nil {
			return "", fmt.Errorf("%w; restoring previous tree: %v", err, rerr)
		}
		return "", err
	}
	return old, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
