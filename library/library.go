// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package library describes the upstream libraries a project vendors.
//
// A Descriptor is plain data: where the upstream lives, which revision is
// pinned, which of its files are installed where, and which literal rewrite
// rules make them collision-safe. Descriptors are usually loaded from TOML
// files with Load or LoadDir.
package library

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/goplus/upsync/internal/build"
	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/install"
	"github.com/goplus/upsync/internal/rewrite"
	"github.com/goplus/upsync/internal/vcs"
	"github.com/goplus/upsync/internal/walk"
	"golang.org/x/mod/semver"
)

type (
	// Rule is a literal rewrite rule.
	Rule = rewrite.Rule
	// FileMapping copies one snapshot file to a destination path.
	FileMapping = install.Mapping
	// BuildStep is a tool run inside the snapshot before copying.
	BuildStep = build.Step
)

// Descriptor declares one vendored library.
type Descriptor struct {
	Name     string   `toml:"name"`
	URL      string   `toml:"url"`
	Revision string   `toml:"revision"`
	Module   string   `toml:"module"`
	Dest     string   `toml:"dest,omitempty"`
	Release  *Release `toml:"release,omitempty"`

	Build []BuildStep `toml:"build,omitempty"`
	Copy  []Copy      `toml:"copy"`

	// RewriteFiles selects, by destination path, the installed files the
	// rules apply to. Empty means every installed file.
	RewriteFiles []string `toml:"rewrite_files,omitempty"`
	// Rules are applied in order; later rules see earlier rules' output.
	Rules []Rule `toml:"rule,omitempty"`

	// Path is the file the descriptor was loaded from, if any.
	Path string `toml:"-"`
}

// Release fetches the snapshot from a release archive instead of git.
type Release struct {
	URL string `toml:"url"`
	// Root is the archive's single top-level directory.
	Root string `toml:"root"`
}

// Copy selects snapshot files. It is either a directory copy (From, To,
// Include, Exclude), which keeps the nesting below From, or a single-file
// copy (File, To), where To is the destination file path.
type Copy struct {
	From    string   `toml:"from,omitempty"`
	File    string   `toml:"file,omitempty"`
	To      string   `toml:"to,omitempty"`
	Include []string `toml:"include,omitempty"`
	Exclude []string `toml:"exclude,omitempty"`
}

func (c Copy) String() string {
	if c.File != "" {
		return c.File + " -> " + c.fileDest()
	}
	return c.from() + "/ -> " + c.to() + "/"
}

func (c Copy) from() string {
	if c.From == "" {
		return "."
	}
	return path.Clean(c.From)
}

func (c Copy) to() string {
	if c.To == "" {
		return "."
	}
	return path.Clean(c.To)
}

func (c Copy) fileDest() string {
	if c.To == "" {
		return path.Base(c.File)
	}
	return path.Clean(c.To)
}

// RevisionKind classifies a pinned revision.
type RevisionKind int

const (
	Tag RevisionKind = iota
	SemverTag
	Commit
)

func (k RevisionKind) String() string {
	switch k {
	case Commit:
		return "commit"
	case SemverTag:
		return "semver tag"
	}
	return "tag"
}

// RevisionKind reports whether the pinned revision is a commit hash, a
// semantic version tag or some other tag.
func (d *Descriptor) RevisionKind() RevisionKind {
	switch {
	case vcs.IsCommit(d.Revision):
		return Commit
	case semver.IsValid(d.Revision):
		return SemverTag
	}
	return Tag
}

// Source returns the location the snapshot is fetched from.
func (d *Descriptor) Source() string {
	if d.Release != nil {
		return d.Release.URL
	}
	return d.URL
}

// DestDir returns the destination subtree below the project root.
func (d *Descriptor) DestDir(project string) string {
	if d.Dest != "" {
		return filepath.Join(project, filepath.FromSlash(d.Dest))
	}
	return filepath.Join(project, d.Module, "src", "main", "native", "thirdparty", d.Name)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks that d is complete and well formed. Every problem is
// reported in a single Config fault. Rule conflicts are not checked here;
// see rewrite.Validate.
func (d *Descriptor) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validName.MatchString(d.Name) {
		bad("invalid name %q", d.Name)
	}
	if d.Revision == "" {
		bad("missing revision")
	}
	if d.Release != nil {
		if d.Release.URL == "" {
			bad("release: missing url")
		}
		if d.Release.Root == "" || path.Base(d.Release.Root) != d.Release.Root || d.Release.Root == ".." {
			bad("release: invalid root %q", d.Release.Root)
		}
	} else if d.URL == "" {
		bad("missing url")
	}
	switch {
	case d.Dest != "":
		if !local(d.Dest) || path.Clean(d.Dest) == "." {
			bad("dest %q is not a local path", d.Dest)
		}
	case d.Module == "":
		bad("missing module or dest")
	case !local(d.Module) || path.Base(d.Module) != d.Module:
		bad("invalid module %q", d.Module)
	}

	for i, step := range d.Build {
		if err := step.Check(); err != nil {
			bad("build[%d]: %v", i, cause(err))
		}
	}
	if len(d.Copy) == 0 {
		bad("no copy entries")
	}
	for i, c := range d.Copy {
		if err := c.check(); err != nil {
			bad("copy[%d]: %v", i, err)
		}
	}
	if _, err := walk.Glob(d.RewriteFiles, nil); err != nil {
		bad("rewrite_files: %v", cause(err))
	}

	if len(errs) == 0 {
		return nil
	}
	where := d.Path
	if where == "" {
		where = d.Name
	}
	return fault.New(fault.Config, "check descriptor", where, errors.Join(errs...))
}

func (c Copy) check() error {
	if c.File != "" {
		if c.From != "" || len(c.Include) > 0 || len(c.Exclude) > 0 {
			return errors.New("file copies take no from, include or exclude")
		}
		if !local(c.File) || !local(c.fileDest()) {
			return fmt.Errorf("%s: path is not local", c)
		}
		return nil
	}
	if !local(c.from()) || !local(c.to()) {
		return fmt.Errorf("%s: path is not local", c)
	}
	if _, err := walk.Glob(c.Include, c.Exclude); err != nil {
		return cause(err)
	}
	return nil
}

func local(p string) bool {
	return filepath.IsLocal(filepath.FromSlash(path.Clean(p)))
}

// cause strips the fault wrapper so nested messages read naturally.
func cause(err error) error {
	var f *fault.Error
	if errors.As(err, &f) && f.Err != nil {
		return f.Err
	}
	return err
}

// Mappings resolves the copy entries against a snapshot root. Directory
// copies list files with walk.Walk, so their order is reproducible; entries
// are concatenated in declaration order. A copy that selects nothing, a
// missing single file or a destination produced twice is a Layout fault.
func (d *Descriptor) Mappings(snapshotRoot string) ([]FileMapping, error) {
	var mappings []FileMapping
	for _, c := range d.Copy {
		if c.File != "" {
			src := path.Clean(c.File)
			info, err := os.Stat(filepath.Join(snapshotRoot, filepath.FromSlash(src)))
			if err != nil || !info.Mode().IsRegular() {
				return nil, fault.Errorf(fault.Layout, "select", src, "upstream file is missing")
			}
			mappings = append(mappings, FileMapping{Src: src, Dst: c.fileDest()})
			continue
		}

		pred, err := walk.Glob(c.Include, c.Exclude)
		if err != nil {
			return nil, err
		}
		from := c.from()
		files, err := walk.Walk(filepath.Join(snapshotRoot, filepath.FromSlash(from)), pred)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fault.Errorf(fault.Layout, "select", from, "%s selected no files", c)
		}
		for _, f := range files {
			mappings = append(mappings, FileMapping{Src: path.Join(from, f), Dst: path.Join(c.to(), f)})
		}
	}
	if err := install.Check(mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

// RewriteSelector returns the predicate choosing the installed files rules
// are applied to.
func (d *Descriptor) RewriteSelector() (func(dst string) bool, error) {
	pred, err := walk.Glob(d.RewriteFiles, nil)
	if err != nil {
		return nil, err
	}
	return func(dst string) bool {
		return pred(path.Dir(dst), path.Base(dst))
	}, nil
}
