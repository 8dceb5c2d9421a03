package install

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{
		"include/tsl/htrie_map.h":            "namespace tsl {}",
		"include/tsl/detail/htrie_hash.h":    "#define TSL_HH",
		"include/tsl/detail/array-hash/ah.h": "ah",
		"README.md":                          "readme",
	})
	return src
}

var htrieMappings = []Mapping{
	{Src: "include/tsl/detail/array-hash/ah.h", Dst: "wpi/detail/array-hash/ah.h"},
	{Src: "include/tsl/detail/htrie_hash.h", Dst: "wpi/detail/htrie_hash.h"},
	{Src: "include/tsl/htrie_map.h", Dst: "wpi/htrie_map.h"},
}

func TestReplaceFresh(t *testing.T) {
	src := upstream(t)
	dest := filepath.Join(t.TempDir(), "wpiutil", "src", "main", "native", "thirdparty", "htrie", "include")

	files, err := Replace(dest, src, htrieMappings)
	require.NoError(t, err)
	assert.Equal(t, []string{"wpi/detail/array-hash/ah.h", "wpi/detail/htrie_hash.h", "wpi/htrie_map.h"}, files)

	// Byte-identical to the sources.
	assert.Equal(t, map[string]string{
		"wpi/detail/array-hash/ah.h": "ah",
		"wpi/detail/htrie_hash.h":    "#define TSL_HH",
		"wpi/htrie_map.h":            "namespace tsl {}",
	}, testutil.ReadTree(t, dest))
	assertNoLeftovers(t, dest)
}

func TestReplaceRemovesStale(t *testing.T) {
	src := upstream(t)
	dest := filepath.Join(t.TempDir(), "htrie")
	testutil.WriteTree(t, dest, map[string]string{
		"wpi/htrie_map.h":     "old",
		"wpi/stale.h":         "from a previous run",
		"wpi/removed/gone.h":  "gone",
		"unrelated/notes.txt": "also owned by the installer",
	})

	_, err := Replace(dest, src, htrieMappings[2:])
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wpi/htrie_map.h": "namespace tsl {}"}, testutil.ReadTree(t, dest))
	assertNoLeftovers(t, dest)
}

func TestReplaceEmptyMappings(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "lib")
	testutil.WriteTree(t, dest, map[string]string{"a.h": "a"})

	files, err := Replace(dest, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, testutil.ReadTree(t, dest))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStageFailureKeepsPrevious(t *testing.T) {
	src := upstream(t)
	dest := filepath.Join(t.TempDir(), "htrie")
	previous := map[string]string{"wpi/htrie_map.h": "good installation"}
	testutil.WriteTree(t, dest, previous)

	mappings := append([]Mapping{}, htrieMappings...)
	mappings = append(mappings, Mapping{Src: "include/tsl/missing.h", Dst: "wpi/missing.h"})

	_, err := Replace(dest, src, mappings)
	require.ErrorIs(t, err, fault.ErrFilesystem)
	assert.Equal(t, previous, testutil.ReadTree(t, dest))
	assertNoLeftovers(t, dest)
}

func TestStageThenDiscard(t *testing.T) {
	src := upstream(t)
	dest := filepath.Join(t.TempDir(), "htrie")

	s, err := Stage(dest, src, htrieMappings)
	require.NoError(t, err)
	assert.Equal(t, "namespace tsl {}", readFile(t, s.Path("wpi/htrie_map.h")))
	assert.Equal(t, dest, s.Dest())

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "dest must not exist before commit")

	require.NoError(t, s.Discard())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, s.Commit())
	assertNoLeftovers(t, dest)
}

func TestStageCommitTwice(t *testing.T) {
	src := upstream(t)
	dest := filepath.Join(t.TempDir(), "htrie")

	s, err := Stage(dest, src, htrieMappings[:1])
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	assert.Error(t, s.Commit())
	assert.NoError(t, s.Discard())
	assert.Len(t, testutil.ReadTree(t, dest), 1)
}

func TestStagePreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no exec bit on windows")
	}
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"gen.sh": "#!/bin/sh\n"})
	require.NoError(t, os.Chmod(filepath.Join(src, "gen.sh"), 0o755))

	dest := filepath.Join(t.TempDir(), "lib")
	_, err := Replace(dest, src, []Mapping{{Src: "gen.sh", Dst: "tools/gen.sh"}})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "tools", "gen.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	info, err = os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestStageReadOnlySourceIsWritable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no unix permissions on windows")
	}
	// Bazel leaves its outputs read-only.
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"bazel-bin/upb/upb.c": "upb_Arena"})
	require.NoError(t, os.Chmod(filepath.Join(src, "bazel-bin", "upb", "upb.c"), 0o444))

	s, err := Stage(filepath.Join(t.TempDir(), "upb"), src, []Mapping{{Src: "bazel-bin/upb/upb.c", Dst: "src/upb.c"}})
	require.NoError(t, err)
	defer s.Discard()

	info, err := os.Stat(s.Path("src/upb.c"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	require.NoError(t, os.WriteFile(s.Path("src/upb.c"), []byte("wpi_upb_Arena"), 0o644))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		mappings []Mapping
		ok       bool
	}{
		{"ok", htrieMappings, true},
		{"escaping dst", []Mapping{{Src: "a.h", Dst: "../a.h"}}, false},
		{"absolute dst", []Mapping{{Src: "a.h", Dst: "/tmp/a.h"}}, false},
		{"escaping src", []Mapping{{Src: "../../etc/passwd", Dst: "a"}}, false},
		{"empty dst", []Mapping{{Src: "a.h", Dst: ""}}, false},
		{"root dst", []Mapping{{Src: "a.h", Dst: "."}}, false},
		{"duplicate dst", []Mapping{{Src: "a.h", Dst: "x/a.h"}, {Src: "b/a.h", Dst: "x/./a.h"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.mappings)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, fault.ErrLayout)
			}
		})
	}
}

func TestRenameAside(t *testing.T) {
	parent := t.TempDir()
	staged := filepath.Join(parent, ".lib.stage-1")
	dest := filepath.Join(parent, "lib")
	testutil.WriteTree(t, staged, map[string]string{"new.h": "new"})
	testutil.WriteTree(t, dest, map[string]string{"old.h": "old"})

	old, err := renameAside(staged, dest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"new.h": "new"}, testutil.ReadTree(t, dest))
	assert.Equal(t, map[string]string{"old.h": "old"}, testutil.ReadTree(t, old))

	// A failing second rename restores the previous tree.
	_, err = renameAside(filepath.Join(parent, "missing"), dest)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"new.h": "new"}, testutil.ReadTree(t, dest))
}

// assertNoLeftovers checks that no staging or swap directory remains next to dest.
func assertNoLeftovers(t *testing.T, dest string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != filepath.Base(dest) {
			t.Errorf("leftover entry next to destination: %s", e.Name())
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
