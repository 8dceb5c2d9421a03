package vcs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/upsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitVCS_Sync(t *testing.T) {
	up := testutil.NewUpstream(t)
	first := up.Commit(map[string]string{"include/a.h": "v1"})
	up.Tag("v1.0.0")
	second := up.Commit(map[string]string{"include/a.h": "v2", "include/b.h": "new"})

	vcs := NewGitVCS()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "work")

	require.NoError(t, vcs.Sync(ctx, up.URL(), first, dir))
	head, err := vcs.Head(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, first, head)
	assert.Equal(t, map[string]string{"include/a.h": "v1"}, withoutGit(testutil.ReadTree(t, dir)))

	// Switch to a newer commit in the same working copy.
	require.NoError(t, vcs.Sync(ctx, up.URL(), second, dir))
	head, err = vcs.Head(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, second, head)
	assert.Equal(t, "new", withoutGit(testutil.ReadTree(t, dir))["include/b.h"])

	// Tags resolve too.
	require.NoError(t, vcs.Sync(ctx, up.URL(), "v1.0.0", dir))
	head, err = vcs.Head(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, first, head)
}

func TestGitVCS_SyncConverges(t *testing.T) {
	up := testutil.NewUpstream(t)
	rev := up.Commit(map[string]string{"a.c": "int a;"})

	vcs := NewGitVCS()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, vcs.Sync(ctx, up.URL(), rev, dir))

	// Dirty the working copy: a modification and an untracked build product.
	testutil.WriteTree(t, dir, map[string]string{"a.c": "int b;", "out/gen.c": "generated"})

	require.NoError(t, vcs.Sync(ctx, up.URL(), rev, dir))
	assert.Equal(t, map[string]string{"a.c": "int a;"}, withoutGit(testutil.ReadTree(t, dir)))
}

func TestGitVCS_SyncUnknownRevision(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Commit(map[string]string{"a.c": ""})

	vcs := NewGitVCS()
	err := vcs.Sync(context.Background(), up.URL(), "0123456789abcdef0123456789abcdef01234567", t.TempDir())
	assert.Error(t, err)
}

func TestGitVCS_TagsAndLatest(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Commit(map[string]string{"a": "1"})
	up.Tag("v1.0.0")
	head := up.Commit(map[string]string{"a": "2"})
	up.Tag("v1.1.0")

	vcs := NewGitVCS()
	ctx := context.Background()

	tags, err := vcs.Tags(ctx, up.URL())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1.0.0", "v1.1.0"}, tags)

	latest, err := vcs.Latest(ctx, up.URL())
	require.NoError(t, err)
	assert.Equal(t, head, latest)
}

func TestWithGitPath(t *testing.T) {
	g := NewGitVCS(WithGitPath("/opt/git/bin/git")).(*gitVCS)
	assert.Equal(t, "/opt/git/bin/git", g.git)

	g = NewGitVCS(WithGitPath("")).(*gitVCS)
	assert.Equal(t, "git", g.git)
}

func TestGitVCS_MissingExecutable(t *testing.T) {
	vcs := NewGitVCS(WithGitPath(filepath.Join(t.TempDir(), "no-such-git")))
	err := vcs.Sync(context.Background(), "file:///nowhere", "main", t.TempDir())
	assert.Error(t, err)
}

func withoutGit(files map[string]string) map[string]string {
	for k := range files {
		if strings.HasPrefix(k, ".git/") {
			delete(files, k)
		}
	}
	return files
}

func TestIsCommit(t *testing.T) {
	commits := []string{"25fdf359711eb27e9e7ec0cfe19cc459ec6488d7", "25fdf35", "25FDF35"}
	others := []string{"25fdf3", "v9.2.0", "main", "deadbeefg", "25fdf359711eb27e9e7ec0cfe19cc459ec6488d7a"}
	for _, rev := range commits {
		assert.True(t, IsCommit(rev), rev)
	}
	for _, rev := range others {
		assert.False(t, IsCommit(rev), rev)
	}
}
