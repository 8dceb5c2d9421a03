// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fault defines the error kinds reported by every upsync step.
//
// Callers classify failures with errors.Is against the sentinel values:
//
//	if errors.Is(err, fault.ErrFetch) { ... }
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	_ Kind = iota
	// Fetch: upstream location or pinned revision unreachable or nonexistent.
	Fetch
	// Layout: fetched or built artifacts do not match the expected layout.
	Layout
	// Filesystem: local read, write, copy or delete failure.
	Filesystem
	// Build: an external build tool exited non-zero.
	Build
	// Rewrite: a file could not be decoded as text.
	Rewrite
	// Rule: a rewrite rule set failed validation.
	Rule
	// Config: invalid descriptor or tool configuration.
	Config
)

var kindNames = [...]string{
	Fetch:      "fetch",
	Layout:     "layout",
	Filesystem: "filesystem",
	Build:      "build",
	Rewrite:    "rewrite",
	Rule:       "rule",
	Config:     "config",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrFetch      = &Error{Kind: Fetch}
	ErrLayout     = &Error{Kind: Layout}
	ErrFilesystem = &Error{Kind: Filesystem}
	ErrBuild      = &Error{Kind: Build}
	ErrRewrite    = &Error{Kind: Rewrite}
	ErrRule       = &Error{Kind: Rule}
	ErrConfig     = &Error{Kind: Config}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "copy"
	Path string // file, directory or URL involved, if any
	Err  error
}

// New returns an *Error of kind k.
func New(k Kind, op, path string, err error) *Error {
	return &Error{Kind: k, Op: op, Path: path, Err: err}
}

// Errorf returns an *Error of kind k with a formatted cause.
func Errorf(k Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
