package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/walk"
	"github.com/goplus/upsync/library"
	"golang.org/x/mod/sumdb/dirhash"
)

// ErrDrift reports an installed subtree that differs from a fresh run.
// Verify returns it wrapped in a Layout fault.
var ErrDrift = errors.New("installed tree differs from a fresh run")

// Verify regenerates d into a scratch project and compares the result with
// the installed destination subtree. A missing or different installation
// is ErrDrift. The returned Result describes the installed subtree.
func (e *Engine) Verify(ctx context.Context, d *library.Descriptor) (*Result, error) {
	dest := d.DestDir(e.root)
	drift := func(format string, args ...any) error {
		err := fmt.Errorf("%w: "+format, append([]any{ErrDrift}, args...)...)
		return &RunError{Library: d.Name, State: Verifying, Err: fault.New(fault.Layout, "verify", dest, err)}
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		return nil, drift("not installed")
	}

	if e.scratch != "" {
		if err := os.MkdirAll(e.scratch, 0o755); err != nil {
			return nil, &RunError{Library: d.Name, State: Verifying, Err: fault.New(fault.Filesystem, "mkdir", e.scratch, err)}
		}
	}
	scratch, err := os.MkdirTemp(e.scratch, "verify-"+d.Name+"-")
	if err != nil {
		return nil, &RunError{Library: d.Name, State: Verifying, Err: fault.New(fault.Filesystem, "mkdir", e.scratch, err)}
	}
	defer e.removeAll(scratch)

	fresh, err := e.run(ctx, d, scratch)
	if err != nil {
		return nil, err
	}
	installed, err := dirhash.HashDir(dest, d.Name, dirhash.Hash1)
	if err != nil {
		return nil, &RunError{Library: d.Name, State: Verifying, Err: fault.New(fault.Filesystem, "hash", dest, err)}
	}

	res := *fresh
	res.Dest = dest
	if installed != fresh.Digest {
		e.log.Warn("drift", "lib", d.Name, "dest", dest, "want", fresh.Digest, "got", installed)
		return &res, drift("%s", diffTrees(fresh.Dest, dest))
	}
	e.log.Info("verified", "lib", d.Name, "dest", dest, "digest", installed)
	return &res, nil
}

// maxListed bounds the paths named in a drift report per category.
const maxListed = 5

// diffTrees summarizes how got differs from want.
func diffTrees(want, got string) string {
	wantFiles, err1 := walk.Walk(want, walk.All)
	gotFiles, err2 := walk.Walk(got, walk.All)
	if err := errors.Join(err1, err2); err != nil {
		return err.Error()
	}

	inWant := make(map[string]bool, len(wantFiles))
	for _, f := range wantFiles {
		inWant[f] = true
	}
	var changed, extra, missing []string
	for _, f := range gotFiles {
		if !inWant[f] {
			extra = append(extra, f)
			continue
		}
		delete(inWant, f)
		a, err1 := os.ReadFile(filepath.Join(want, filepath.FromSlash(f)))
		b, err2 := os.ReadFile(filepath.Join(got, filepath.FromSlash(f)))
		if err1 != nil || err2 != nil || !bytes.Equal(a, b) {
			changed = append(changed, f)
		}
	}
	for _, f := range wantFiles {
		if inWant[f] {
			missing = append(missing, f)
		}
	}

	var parts []string
	for _, c := range []struct {
		what  string
		files []string
	}{{"changed", changed}, {"extra", extra}, {"missing", missing}} {
		if len(c.files) == 0 {
			continue
		}
		list := c.files
		more := ""
		if len(list) > maxListed {
			more = fmt.Sprintf(" and %d more", len(list)-maxListed)
			list = list[:maxListed]
		}
		parts = append(parts, c.what+" "+strings.Join(list, ", ")+more)
	}
	if len(parts) == 0 {
		// Regular files agree, so the difference is in other entries.
		return "installed tree holds entries other than regular files"
	}
	return strings.Join(parts, "; ")
}
