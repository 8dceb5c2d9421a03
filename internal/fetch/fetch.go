// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch materializes upstream snapshots in the work directory,
// either as git checkouts of a pinned revision or as extracted release
// archives.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/upsync/internal/env"
	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/vcs"
)

// Fetcher obtains upstream snapshots below a work directory.
type Fetcher struct {
	layout env.Layout
	vcs    vcs.VCS
	client *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithVCS sets the version control backend used by Pinned.
func WithVCS(v vcs.VCS) Option {
	return func(f *Fetcher) { f.vcs = v }
}

// WithHTTPClient sets the client used by Release.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New returns a Fetcher storing snapshots under workDir.
func New(workDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		layout: env.Layout{Root: workDir},
		vcs:    vcs.NewGitVCS(),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Pinned checks out revision of the repository at location and returns the
// snapshot root. Repeated calls converge to the same tree. A revision or
// location that cannot be fetched is a Fetch fault.
func (f *Fetcher) Pinned(ctx context.Context, location, revision string) (string, error) {
	if location == "" || revision == "" {
		return "", fault.Errorf(fault.Config, "fetch", location, "location and revision are required")
	}
	dir := f.layout.SourceDir(location)
	if err := f.vcs.Sync(ctx, location, revision, dir); err != nil {
		return "", fault.New(fault.Fetch, "fetch "+revision, location, err)
	}
	if vcs.IsCommit(revision) {
		head, err := f.vcs.Head(ctx, dir)
		if err != nil {
			return "", fault.New(fault.Fetch, "fetch "+revision, location, err)
		}
		if !strings.HasPrefix(head, strings.ToLower(revision)) {
			return "", fault.Errorf(fault.Fetch, "fetch "+revision, location, "checked out %s instead", head)
		}
	}
	return dir, nil
}

// Release downloads the archive at archiveURL, extracts it into a freshly
// cleared directory and returns the path of its top-level directory, which
// must be the only entry and be named root. Download failures are Fetch
// faults. Archives with another layout, or with entries escaping the
// extraction directory, are Layout faults.
func (f *Fetcher) Release(ctx context.Context, archiveURL, root string) (string, error) {
	if root == "" || strings.ContainsAny(root, `/\`) || root == "." || root == ".." {
		return "", fault.Errorf(fault.Config, "fetch", archiveURL, "invalid archive root %q", root)
	}
	dir := f.layout.ReleaseDir(archiveURL)
	if err := os.RemoveAll(dir); err != nil {
		return "", fault.New(fault.Filesystem, "clear", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fault.New(fault.Filesystem, "mkdir", dir, err)
	}

	archive, err := f.download(ctx, archiveURL, filepath.Dir(dir))
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if err := extract(archive, dir); err != nil {
		return "", err
	}
	return checkRoot(dir, root)
}

// download stores the body of archiveURL in a temporary file under tmpDir.
func (f *Fetcher) download(ctx context.Context, archiveURL, tmpDir string) (_ string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", fault.New(fault.Fetch, "download", archiveURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fault.New(fault.Fetch, "download", archiveURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fault.Errorf(fault.Fetch, "download", archiveURL, "unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(tmpDir, ".download-*")
	if err != nil {
		return "", fault.New(fault.Filesystem, "download", tmpDir, err)
	}
	defer func() {
		if cerr := tmp.Close(); cerr != nil && err == nil {
			err = fault.New(fault.Filesystem, "download", tmp.Name(), cerr)
		}
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return "", fault.New(fault.Fetch, "download", archiveURL, err)
	}
	return tmp.Name(), nil
}

// checkRoot requires dir to hold exactly one directory named root.
func checkRoot(dir, root string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fault.New(fault.Filesystem, "read", dir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	if len(entries) != 1 || names[0] != root || !entries[0].IsDir() {
		return "", fault.Errorf(fault.Layout, "extract", dir,
			"archive must contain the single top-level directory %q, found %s", root, fmt.Sprint(names))
	}
	return filepath.Join(dir, root), nil
}
