// Package walk enumerates upstream files in a reproducible order.
package walk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goplus/upsync/internal/fault"
)

// Predicate decides whether a file is selected. dir is the file's directory
// relative to the walk root ("." for the root itself), slash-separated.
type Predicate func(dir, name string) bool

// All selects every file.
func All(dir, name string) bool { return true }

// Walk returns the slash-separated paths, relative to root, of every regular
// file under root that pred accepts. Paths are sorted lexicographically so
// the result does not depend on the platform's directory order. Directories
// named .git are not descended.
//
// A symlink is selected like a file when it resolves to a regular file
// inside root. An accepted symlink that dangles, leaves root or names
// anything else is a Layout fault. Other non-regular entries are ignored.
func Walk(root string, pred Predicate) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.Layout, "walk", root, err)
		}
		return nil, fault.New(fault.Filesystem, "walk", root, err)
	}
	if !info.IsDir() {
		return nil, fault.Errorf(fault.Layout, "walk", root, "not a directory")
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fault.New(fault.Filesystem, "walk", root, err)
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		link := d.Type()&fs.ModeSymlink != 0
		if !link && !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !pred(path.Dir(rel), path.Base(rel)) {
			return nil
		}
		if link {
			if err := checkLink(realRoot, p); err != nil {
				return fault.New(fault.Layout, "walk", rel, err)
			}
		}
		files = append(files, rel)
		return nil
	})
	var f *fault.Error
	if errors.As(err, &f) {
		return nil, f
	}
	if err != nil {
		return nil, fault.New(fault.Filesystem, "walk", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// Glob returns a Predicate accepting files whose relative path matches any
// include pattern (all files when include is empty) and no exclude pattern.
// Patterns use doublestar syntax, e.g. "**/*.h".
func Glob(include, exclude []string) (Predicate, error) {
	for _, pat := range slices.Concat(include, exclude) {
		if !doublestar.ValidatePattern(pat) {
			return nil, fault.Errorf(fault.Config, "glob", "", "invalid pattern %q", pat)
		}
	}
	return func(dir, name string) bool {
		rel := path.Join(dir, name)
		if len(include) > 0 && !matchAny(include, rel) {
			return false
		}
		return !matchAny(exclude, rel)
	}, nil
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// checkLink requires the symlink at p to resolve to a regular file below
// realRoot.
func checkLink(realRoot, p string) error {
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return fmt.Errorf("unresolvable symlink: %w", err)
	}
	if rel, err := filepath.Rel(realRoot, target); err != nil || !filepath.IsLocal(rel) {
		return errors.New("symlink points outside the tree")
	}
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("symlink does not point to a regular file")
	}
	return nil
}
