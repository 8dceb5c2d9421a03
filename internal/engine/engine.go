// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine drives one library from its pinned upstream to an
// installed, rewritten destination subtree.
//
// Every run walks the same states:
//
//	Checking -> Fetching -> Customizing -> Done
//
// A failure in any state ends the run with a *RunError naming the state.
// Customizing stages the new tree next to the destination, so a failed run
// leaves the previous installation as it was. Fetched snapshots are kept
// in the work directory and are not rolled back.
package engine

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goplus/upsync/internal/build"
	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/install"
	"github.com/goplus/upsync/internal/rewrite"
	"github.com/goplus/upsync/library"
	"golang.org/x/mod/sumdb/dirhash"
)

// Fetcher materializes upstream snapshots.
type Fetcher interface {
	Pinned(ctx context.Context, location, revision string) (string, error)
	Release(ctx context.Context, archiveURL, root string) (string, error)
}

// Builder runs build steps inside a snapshot.
type Builder interface {
	Run(ctx context.Context, step build.Step, workdir string) ([]string, error)
}

// Options configures an Engine.
type Options struct {
	// Root is the project the destination subtrees live in.
	Root    string
	Fetcher Fetcher
	// Builder defaults to a build.Runner that discards tool output.
	Builder Builder
	// Remote answers update queries; optional.
	Remote Remote
	// ScratchDir holds the temporary project roots of Verify. Defaults to
	// the system temporary directory.
	ScratchDir string
	Logger     *log.Logger
}

// Engine runs library descriptors against a project.
type Engine struct {
	root    string
	fetcher Fetcher
	builder Builder
	remote  Remote
	scratch string
	log     *log.Logger
}

// New returns an Engine for opts.
func New(opts Options) *Engine {
	e := &Engine{
		root:    opts.Root,
		fetcher: opts.Fetcher,
		builder: opts.Builder,
		remote:  opts.Remote,
		scratch: opts.ScratchDir,
		log:     opts.Logger,
	}
	if e.builder == nil {
		e.builder = &build.Runner{}
	}
	if e.log == nil {
		e.log = log.New(io.Discard)
	}
	return e
}

// Result describes a completed run.
type Result struct {
	Name     string
	Revision string
	Dest     string
	// Files are the installed paths relative to Dest, in mapping order.
	Files []string
	// Rewritten counts the files the rules changed.
	Rewritten int
	// Digest is the dirhash h1 digest of the installed subtree.
	Digest string
}

// Run fetches d's snapshot, runs its build steps, installs the selected
// files into its destination subtree and applies its rewrite rules. After a
// successful run the destination holds exactly the files of this run.
func (e *Engine) Run(ctx context.Context, d *library.Descriptor) (*Result, error) {
	return e.run(ctx, d, e.root)
}

// RunAll runs descs one after another and stops at the first failure. It
// returns the results of the runs that completed.
func (e *Engine) RunAll(ctx context.Context, descs []*library.Descriptor) ([]*Result, error) {
	results := make([]*Result, 0, len(descs))
	for _, d := range descs {
		res, err := e.Run(ctx, d)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// task is the state of one run.
type task struct {
	desc     *library.Descriptor
	dest     string
	state    State
	snapshot string
}

func (t *task) fail(err error) error {
	return &RunError{Library: t.desc.Name, State: t.state, Err: err}
}

func (e *Engine) enter(t *task, s State) {
	t.state = s
	e.log.Debug("state", "lib", t.desc.Name, "state", s)
}

func (e *Engine) run(ctx context.Context, d *library.Descriptor, project string) (*Result, error) {
	t := &task{desc: d, dest: d.DestDir(project)}
	if err := e.prepare(ctx, t); err != nil {
		return nil, err
	}
	mappings, err := e.resolve(t)
	if err != nil {
		return nil, err
	}
	files, rewritten, err := e.install(t, mappings)
	if err != nil {
		return nil, err
	}

	e.enter(t, Done)
	sum, err := digest(t)
	if err != nil {
		return nil, err
	}
	e.log.Info("synced", "lib", d.Name, "rev", d.Revision, "dest", t.dest, "files", len(files), "rewritten", rewritten)
	return &Result{
		Name:      d.Name,
		Revision:  d.Revision,
		Dest:      t.dest,
		Files:     files,
		Rewritten: rewritten,
		Digest:    sum,
	}, nil
}

// digest hashes the installed subtree of t.
func digest(t *task) (string, error) {
	h, err := dirhash.HashDir(t.dest, t.desc.Name, dirhash.Hash1)
	if err != nil {
		return "", t.fail(fault.New(fault.Filesystem, "hash", t.dest, err))
	}
	return h, nil
}

// prepare checks the descriptor and its rules, fetches the snapshot and
// runs the build steps.
func (e *Engine) prepare(ctx context.Context, t *task) error {
	d := t.desc
	e.enter(t, Checking)
	if err := d.Validate(); err != nil {
		return t.fail(err)
	}
	if err := rewrite.Validate(d.Rules); err != nil {
		return t.fail(err)
	}

	e.enter(t, Fetching)
	var err error
	if d.Release != nil {
		e.log.Info("downloading", "lib", d.Name, "url", d.Release.URL)
		t.snapshot, err = e.fetcher.Release(ctx, d.Release.URL, d.Release.Root)
	} else {
		e.log.Info("fetching", "lib", d.Name, "url", d.URL, "rev", d.Revision)
		t.snapshot, err = e.fetcher.Pinned(ctx, d.URL, d.Revision)
	}
	if err != nil {
		return t.fail(err)
	}

	e.enter(t, Customizing)
	for i, step := range d.Build {
		e.log.Info("building", "lib", d.Name, "step", i, "cmd", step.String())
		outputs, err := e.builder.Run(ctx, step, t.snapshot)
		if err != nil {
			return t.fail(err)
		}
		e.log.Debug("built", "lib", d.Name, "step", i, "outputs", outputs)
	}
	return nil
}

func (e *Engine) resolve(t *task) ([]library.FileMapping, error) {
	mappings, err := t.desc.Mappings(t.snapshot)
	if err != nil {
		return nil, t.fail(err)
	}
	return mappings, nil
}

// install stages mappings, rewrites the staged copies and commits them.
func (e *Engine) install(t *task, mappings []library.FileMapping) (files []string, rewritten int, err error) {
	d := t.desc
	selected, err := d.RewriteSelector()
	if err != nil {
		return nil, 0, t.fail(err)
	}
	s, err := install.Stage(t.dest, t.snapshot, mappings)
	if err != nil {
		return nil, 0, t.fail(err)
	}
	defer func() {
		if err != nil {
			s.Discard()
		}
	}()

	if len(d.Rules) > 0 {
		for _, f := range s.Files() {
			if !selected(f) {
				continue
			}
			changed, err := rewrite.ApplyRules(s.Path(f), d.Rules)
			if err != nil {
				return nil, 0, t.fail(err)
			}
			if changed {
				rewritten++
			}
		}
	}
	if err := s.Commit(); err != nil {
		return nil, 0, t.fail(err)
	}
	return s.Files(), rewritten, nil
}

// Plan fetches and builds d and resolves its file mappings without
// touching the destination.
func (e *Engine) Plan(ctx context.Context, d *library.Descriptor) (*Plan, error) {
	t := &task{desc: d, dest: d.DestDir(e.root)}
	if err := e.prepare(ctx, t); err != nil {
		return nil, err
	}
	mappings, err := e.resolve(t)
	if err != nil {
		return nil, err
	}
	selected, err := d.RewriteSelector()
	if err != nil {
		return nil, t.fail(err)
	}
	p := &Plan{Name: d.Name, Snapshot: t.snapshot, Dest: t.dest, Mappings: mappings}
	for _, m := range mappings {
		p.Rewrite = append(p.Rewrite, len(d.Rules) > 0 && selected(m.Dst))
	}
	return p, nil
}

// Plan is the resolved file selection of a descriptor.
type Plan struct {
	Name     string
	Snapshot string
	Dest     string
	Mappings []library.FileMapping
	// Rewrite[i] reports whether rules apply to Mappings[i].
	Rewrite []bool
}

func (e *Engine) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.log.Warn("cleanup failed", "dir", dir, "err", err)
	}
}
