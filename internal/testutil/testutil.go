// Package testutil provides fixtures shared by upsync tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// WriteTree creates files under root. Keys are slash-separated paths.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path. A missing root yields an empty map.
func ReadTree(t testing.TB, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("read tree %s: %v", root, err)
	}
	return files
}

// Keys returns the sorted keys of m.
func Keys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Upstream is a local git repository standing in for a remote.
type Upstream struct {
	t   testing.TB
	Dir string
}

// NeedGit skips the test when no git executable is available.
func NeedGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// NewUpstream creates an empty repository that serves any commit by hash.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()
	NeedGit(t)
	u := &Upstream{t: t, Dir: filepath.Join(t.TempDir(), "upstream")}
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	u.Git("init", "--quiet")
	u.Git("config", "uploadpack.allowAnySHA1InWant", "true")
	return u
}

// URL returns a file:// URL for the repository.
func (u *Upstream) URL() string {
	return "file://" + filepath.ToSlash(u.Dir)
}

// Commit replaces the work tree with files, commits and returns the hash.
func (u *Upstream) Commit(files map[string]string) string {
	u.t.Helper()
	entries, err := os.ReadDir(u.Dir)
	if err != nil {
		u.t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(u.Dir, e.Name())); err != nil {
			u.t.Fatal(err)
		}
	}
	WriteTree(u.t, u.Dir, files)
	u.Git("add", "--all")
	u.Git("commit", "--quiet", "--allow-empty", "-m", "snapshot")
	return u.Git("rev-parse", "HEAD")
}

// Tag creates a lightweight tag at HEAD.
func (u *Upstream) Tag(name string) {
	u.t.Helper()
	u.Git("tag", name)
}

// Git runs git in the repository and returns trimmed stdout.
func (u *Upstream) Git(args ...string) string {
	u.t.Helper()
	args = append([]string{
		"-c", "user.name=upsync",
		"-c", "user.email=upsync@example.com",
		"-c", "commit.gpgsign=false",
		"-c", "init.defaultBranch=main",
	}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = u.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		u.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}
