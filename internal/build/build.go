// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build runs the external tools some upstreams need before their
// files can be copied, such as amalgamation or code generation steps.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/goplus/upsync/internal/fault"
)

// Step kinds.
const (
	Exec      = "exec"
	CMake     = "cmake"
	Autotools = "autotools"
)

// Step is one tool invocation inside a snapshot.
type Step struct {
	// Kind is Exec (the default), CMake or Autotools.
	Kind string `toml:"kind"`
	// Command is the argv for Exec steps. For CMake and Autotools steps
	// it holds extra configure arguments.
	Command []string `toml:"command"`
	// Dir is the slash-separated directory, relative to the snapshot root,
	// the step runs in.
	Dir string `toml:"dir"`
	// Env holds extra KEY=VALUE entries for the tool environment.
	Env []string `toml:"env"`
	// Outputs are the files, relative to Dir, the step must produce.
	Outputs []string `toml:"outputs"`

	// BuildDir and Target apply to CMake and Autotools steps, the rest
	// to CMake only.
	BuildDir  string            `toml:"build_dir"`
	Generator string            `toml:"generator"`
	BuildType string            `toml:"build_type"`
	Target    string            `toml:"target"`
	Defines   map[string]string `toml:"defines"`
}

func (s Step) kind() string {
	if s.Kind == "" {
		return Exec
	}
	return s.Kind
}

func (s Step) String() string {
	switch s.kind() {
	case CMake:
		return "cmake " + s.dir()
	case Autotools:
		return "configure && make in " + s.dir()
	}
	return strings.Join(s.Command, " ")
}

func (s Step) dir() string {
	if s.Dir == "" {
		return "."
	}
	return s.Dir
}

// Check reports whether s is well formed.
func (s Step) Check() error {
	switch s.kind() {
	case Exec:
		if len(s.Command) == 0 || s.Command[0] == "" {
			return fault.Errorf(fault.Config, "check build step", "", "exec step has no command")
		}
	case CMake, Autotools:
		if s.BuildDir != "" && !local(s.BuildDir) {
			return fault.Errorf(fault.Config, "check build step", s.BuildDir, "build directory is not local")
		}
	default:
		return fault.Errorf(fault.Config, "check build step", "", "unknown step kind %q", s.Kind)
	}
	if !local(s.dir()) {
		return fault.Errorf(fault.Config, "check build step", s.Dir, "directory is not local")
	}
	for _, out := range s.Outputs {
		if !local(out) || out == "." {
			return fault.Errorf(fault.Config, "check build step", out, "output is not local")
		}
	}
	for _, kv := range s.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fault.Errorf(fault.Config, "check build step", "", "malformed env entry %q", kv)
		}
	}
	return nil
}

func local(p string) bool {
	return filepath.IsLocal(filepath.FromSlash(path.Clean(p)))
}

// Runner runs build steps. The zero value runs tools with the process
// environment and discards their output.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Env holds extra KEY=VALUE entries applied to every step.
	Env []string
	// CMakePath is the cmake executable, "cmake" when empty.
	CMakePath string
	// MakePath is the make executable, "make" when empty.
	MakePath string
}

// Run runs step inside workdir and waits for it to exit. A tool that
// cannot be started or exits non-zero is a Build fault carrying the tail
// of its standard error. After a successful run every declared output
// must exist, else a Layout fault is returned. It returns the absolute
// output paths in declaration order.
func (r *Runner) Run(ctx context.Context, step Step, workdir string) ([]string, error) {
	if err := step.Check(); err != nil {
		return nil, err
	}
	dir := filepath.Join(workdir, filepath.FromSlash(step.dir()))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fault.Errorf(fault.Layout, "build", dir, "step directory does not exist")
	}

	var err error
	switch step.kind() {
	case CMake:
		err = r.cmake(ctx, step, dir)
	case Autotools:
		err = r.autotools(ctx, step, dir)
	default:
		err = r.run(ctx, dir, step.Env, step.Command[0], step.Command[1:]...)
	}
	if err != nil {
		return nil, err
	}

	outputs := make([]string, len(step.Outputs))
	for i, out := range step.Outputs {
		p := filepath.Join(dir, filepath.FromSlash(out))
		if _, err := os.Stat(p); err != nil {
			return nil, fault.Errorf(fault.Layout, "build", p, "declared output was not produced by %s", step)
		}
		outputs[i] = p
	}
	return outputs, nil
}

// tailSize bounds the standard error kept for fault messages.
const tailSize = 2048

func (r *Runner) run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	var tail tailBuffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = writerOrDiscard(r.Stdout)
	cmd.Stderr = io.MultiWriter(writerOrDiscard(r.Stderr), &tail)
	if len(r.Env) > 0 || len(env) > 0 {
		cmd.Env = append(append(os.Environ(), r.Env...), env...)
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		var exitErr *exec.ExitError
		if msg := strings.TrimSpace(tail.String()); msg != "" && errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return fault.New(fault.Build, "run "+filepath.Base(name), dir, err)
	}
	return nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last tailSize bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= tailSize {
		t.buf.Reset()
		t.buf.Write(p[n-tailSize:])
		return n, nil
	}
	if over := t.buf.Len() + n - tailSize; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
