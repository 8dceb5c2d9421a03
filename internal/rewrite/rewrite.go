// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rewrite applies ordered literal substitutions to vendored files.
//
// A rule set is applied front to back: each rule replaces every
// non-overlapping occurrence of its pattern in the output of the previous
// rule. Order is part of a rule set's meaning. Validate rejects orderings
// whose result depends on one rule re-reading another rule's output.
package rewrite

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/goplus/upsync/internal/fault"
)

// Rule replaces the literal From with the literal To.
type Rule struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%q -> %q", r.From, r.To)
}

// Apply returns content with every rule applied in order.
func Apply(content string, rules []Rule) string {
	for _, r := range rules {
		content = strings.ReplaceAll(content, r.From, r.To)
	}
	return content
}

// ApplyRules rewrites the file at path in place. The file must be valid
// UTF-8 text. Its mode is preserved, and it is left untouched when no rule
// changes it. It reports whether the file changed.
func ApplyRules(path string, rules []Rule) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fault.New(fault.Filesystem, "read", path, err)
	}
	if !utf8.Valid(data) {
		return false, fault.Errorf(fault.Rewrite, "decode", path, "not valid UTF-8 text")
	}
	out := Apply(string(data), rules)
	if out == string(data) {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fault.New(fault.Filesystem, "stat", path, err)
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return false, fault.New(fault.Filesystem, "write", path, err)
	}
	return true, nil
}

// ConflictKind names the way two rules interfere.
type ConflictKind string

const (
	// Empty: a rule has an empty pattern.
	Empty ConflictKind = "empty"
	// Duplicate: two rules share a pattern; the later one never matches.
	Duplicate ConflictKind = "duplicate"
	// Remap: a later pattern occurs in an earlier replacement, so text
	// produced by the earlier rule is rewritten again.
	Remap ConflictKind = "remap"
	// Shadow: an earlier pattern is part of a later, longer pattern, so the
	// earlier rule consumes text the later rule needs. The more specific
	// rule must come first.
	Shadow ConflictKind = "shadow"
)

// Conflict describes a pair of interfering rules by index.
type Conflict struct {
	Kind          ConflictKind
	First, Second int
	Rules         [2]Rule
}

func (c Conflict) Error() string {
	if c.Kind == Empty {
		return fmt.Sprintf("rule %d has an empty pattern", c.First)
	}
	return fmt.Sprintf("%s: rule %d (%s) and rule %d (%s)",
		c.Kind, c.First, c.Rules[0], c.Second, c.Rules[1])
}

// Conflicts returns every interference in rules, ordered by rule index.
func Conflicts(rules []Rule) []Conflict {
	var cs []Conflict
	for i, a := range rules {
		if a.From == "" {
			cs = append(cs, Conflict{Kind: Empty, First: i, Second: i, Rules: [2]Rule{a, a}})
			continue
		}
		for j := i + 1; j < len(rules); j++ {
			b := rules[j]
			if b.From == "" {
				continue
			}
			pair := [2]Rule{a, b}
			switch {
			case a.From == b.From:
				cs = append(cs, Conflict{Kind: Duplicate, First: i, Second: j, Rules: pair})
			case strings.Contains(a.To, b.From):
				cs = append(cs, Conflict{Kind: Remap, First: i, Second: j, Rules: pair})
			case strings.Contains(b.From, a.From):
				cs = append(cs, Conflict{Kind: Shadow, First: i, Second: j, Rules: pair})
			}
		}
	}
	return cs
}

// Validate returns a Rule fault listing every conflict in rules, or nil.
func Validate(rules []Rule) error {
	cs := Conflicts(rules)
	if len(cs) == 0 {
		return nil
	}
	errs := make([]error, len(cs))
	for i, c := range cs {
		errs[i] = c
	}
	return fault.New(fault.Rule, "validate rules", "", errors.Join(errs...))
}

// Idempotent reports whether applying rules to already rewritten content
// is a no-op: no pattern occurs in any replacement, including its own.
func Idempotent(rules []Rule) bool {
	for _, a := range rules {
		for _, b := range rules {
			if b.From != "" && strings.Contains(a.To, b.From) {
				return false
			}
		}
	}
	return true
}
