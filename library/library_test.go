package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/rewrite"
	"github.com/goplus/upsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htrie() *Descriptor {
	return &Descriptor{
		Name:     "htrie",
		URL:      "https://github.com/Tessil/hat-trie",
		Revision: "25fdf359711eb27e9e7ec0cfe19cc459ec6488d7",
		Module:   "wpiutil",
		Copy:     []Copy{{From: "include/tsl", To: "wpi"}},
		Rules:    []Rule{{From: "namespace tsl", To: "namespace wpi"}},
	}
}

func TestShippedDescriptors(t *testing.T) {
	descs, err := LoadDir(filepath.Join("..", "upstream"))
	require.NoError(t, err)

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
		assert.NoError(t, rewrite.Validate(d.Rules), d.Name)
	}
	assert.Equal(t, []string{"htrie", "llhttp", "upb"}, names)

	htrie, llhttp, upb := descs[0], descs[1], descs[2]
	assert.Equal(t, Commit, htrie.RevisionKind())
	assert.True(t, rewrite.Idempotent(htrie.Rules))
	assert.Equal(t, "https://github.com/nodejs/llhttp/archive/refs/tags/release/v9.2.0.tar.gz", llhttp.Source())
	assert.Equal(t, "llhttp-release-v9.2.0", llhttp.Release.Root)
	assert.Equal(t, SemverTag, upb.RevisionKind())
	assert.False(t, rewrite.Idempotent(upb.Rules))
	require.Len(t, upb.Build, 1)
	assert.Equal(t, "bazelisk", upb.Build[0].Command[0])
	assert.Equal(t, filepath.Join("proj", "wpiutil", "src", "main", "native", "thirdparty", "upb"), upb.DestDir("proj"))
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("name = \"x\"\nrevison = \"v1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revison")
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("name = \"x\"\nrevision = \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expected.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
url = "https://github.com/TartanLlama/expected"
revision = "v1.1.0"
module = "wpiutil"

[[copy]]
file = "include/tl/expected.hpp"
to = "wpi/expected"
`), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expected", d.Name)
	assert.Equal(t, path, d.Path)
	assert.Equal(t, []Copy{{File: "include/tl/expected.hpp", To: "wpi/expected"}}, d.Copy)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, fault.ErrFilesystem)

	require.NoError(t, os.WriteFile(path, []byte("name = 1\n"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, fault.ErrConfig)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(file, name string) {
		testutil.WriteTree(t, dir, map[string]string{file: `name = "` + name + `"
url = "https://example.com/` + name + `"
revision = "v1.0.0"
module = "wpiutil"
[[copy]]
from = "include"
`})
	}
	write("b.toml", "zlib")
	write("a.toml", "abseil")
	testutil.WriteTree(t, dir, map[string]string{"README.md": "not a descriptor"})

	descs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "abseil", descs[0].Name)
	assert.Equal(t, "zlib", descs[1].Name)

	write("c.toml", "zlib")
	_, err = LoadDir(dir)
	assert.ErrorIs(t, err, fault.ErrConfig)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	a, b := &Descriptor{Name: "a"}, &Descriptor{Name: "b"}
	all := []*Descriptor{a, b}

	got, err := Select(all, nil)
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = Select(all, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []*Descriptor{b, a}, got)

	_, err = Select(all, []string{"c"})
	assert.ErrorIs(t, err, fault.ErrConfig)
}

func TestValidate(t *testing.T) {
	require.NoError(t, htrie().Validate())

	tests := []struct {
		name   string
		modify func(d *Descriptor)
	}{
		{"no name", func(d *Descriptor) { d.Name = "" }},
		{"bad name", func(d *Descriptor) { d.Name = "../x" }},
		{"no revision", func(d *Descriptor) { d.Revision = "" }},
		{"no url", func(d *Descriptor) { d.URL = "" }},
		{"no module", func(d *Descriptor) { d.Module = "" }},
		{"nested module", func(d *Descriptor) { d.Module = "a/b" }},
		{"escaping dest", func(d *Descriptor) { d.Dest = "../elsewhere" }},
		{"project dest", func(d *Descriptor) { d.Dest = "." }},
		{"release root", func(d *Descriptor) { d.Release = &Release{URL: "https://x/y.tgz", Root: "a/b"} }},
		{"release url", func(d *Descriptor) { d.Release = &Release{Root: "y"} }},
		{"no copy", func(d *Descriptor) { d.Copy = nil }},
		{"escaping copy", func(d *Descriptor) { d.Copy = []Copy{{From: "../x"}} }},
		{"file with include", func(d *Descriptor) { d.Copy = []Copy{{File: "a.h", Include: []string{"*"}}} }},
		{"bad glob", func(d *Descriptor) { d.Copy[0].Include = []string{"[a"} }},
		{"bad rewrite glob", func(d *Descriptor) { d.RewriteFiles = []string{"{a"} }},
		{"bad build", func(d *Descriptor) { d.Build = []BuildStep{{Kind: "make"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := htrie()
			tt.modify(d)
			assert.ErrorIs(t, d.Validate(), fault.ErrConfig)
		})
	}

	d := htrie()
	d.URL = ""
	d.Release = &Release{URL: "https://x/y.tgz", Root: "y"}
	assert.NoError(t, d.Validate(), "a release replaces the url")

	d = htrie()
	d.Name, d.Revision = "", ""
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid name")
	assert.Contains(t, err.Error(), "missing revision")
}

func TestDestDir(t *testing.T) {
	d := htrie()
	assert.Equal(t, filepath.Join("/p", "wpiutil", "src", "main", "native", "thirdparty", "htrie"), d.DestDir("/p"))
	d.Dest = "wpiutil/src/main/native/thirdparty/htrie/include"
	assert.Equal(t, filepath.Join("/p", "wpiutil", "src", "main", "native", "thirdparty", "htrie", "include"), d.DestDir("/p"))
}

func TestRevisionKind(t *testing.T) {
	d := htrie()
	assert.Equal(t, Commit, d.RevisionKind())
	d.Revision = "v5.28.3"
	assert.Equal(t, SemverTag, d.RevisionKind())
	d.Revision = "release/v9.2.0"
	assert.Equal(t, Tag, d.RevisionKind())
	assert.Equal(t, "semver tag", SemverTag.String())
}

func snapshot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"include/tsl/htrie_map.h":              "map",
		"include/tsl/htrie_set.h":              "set",
		"include/tsl/detail/htrie_hash.h":      "hash",
		"include/tsl/detail/array-hash/ah.txt": "notes",
		"include/tl/expected.hpp":              "expected",
		"tests/main.cpp":                       "test",
		".git/config":                          "git",
	})
	return root
}

func TestMappings(t *testing.T) {
	root := snapshot(t)
	d := htrie()
	d.Copy = []Copy{
		{From: "include/tsl", To: "wpi", Include: []string{"**/*.h"}, Exclude: []string{"htrie_set.h"}},
		{File: "include/tl/expected.hpp", To: "wpi/expected"},
		{File: "tests/main.cpp"},
	}
	got, err := d.Mappings(root)
	require.NoError(t, err)
	assert.Equal(t, []FileMapping{
		{Src: "include/tsl/detail/htrie_hash.h", Dst: "wpi/detail/htrie_hash.h"},
		{Src: "include/tsl/htrie_map.h", Dst: "wpi/htrie_map.h"},
		{Src: "include/tl/expected.hpp", Dst: "wpi/expected"},
		{Src: "tests/main.cpp", Dst: "main.cpp"},
	}, got)
}

func TestMappingsWholeTree(t *testing.T) {
	root := snapshot(t)
	d := htrie()
	d.Copy = []Copy{{}}
	got, err := d.Mappings(root)
	require.NoError(t, err)
	assert.Len(t, got, 6, ".git is never selected")
	assert.Equal(t, FileMapping{Src: "include/tl/expected.hpp", Dst: "include/tl/expected.hpp"}, got[0])
}

func TestMappingsSymlinkedHeader(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"include/real/a.h": "a"})
	if err := os.Symlink(filepath.Join("real", "a.h"), filepath.Join(root, "include", "a.h")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	d := htrie()
	d.Copy = []Copy{{From: "include", To: "wpi"}}
	got, err := d.Mappings(root)
	require.NoError(t, err)
	assert.Equal(t, []FileMapping{
		{Src: "include/a.h", Dst: "wpi/a.h"},
		{Src: "include/real/a.h", Dst: "wpi/real/a.h"},
	}, got)
}

func TestMappingsLayout(t *testing.T) {
	root := snapshot(t)
	tests := []struct {
		name string
		copy []Copy
	}{
		{"missing file", []Copy{{File: "include/tl/optional.hpp"}}},
		{"missing dir", []Copy{{From: "include/tl2"}}},
		{"nothing selected", []Copy{{From: "include/tsl", Include: []string{"*.hpp"}}}},
		{"duplicate destination", []Copy{{File: "include/tsl/htrie_map.h", To: "a.h"}, {File: "include/tsl/htrie_set.h", To: "a.h"}}},
		{"directory as file", []Copy{{File: "include/tsl"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := htrie()
			d.Copy = tt.copy
			_, err := d.Mappings(root)
			assert.ErrorIs(t, err, fault.ErrLayout)
		})
	}
}

func TestRewriteSelector(t *testing.T) {
	d := htrie()
	all, err := d.RewriteSelector()
	require.NoError(t, err)
	assert.True(t, all("wpi/anything.bin"))

	d.RewriteFiles = []string{"**/*.h", "wpi/expected"}
	sel, err := d.RewriteSelector()
	require.NoError(t, err)
	assert.True(t, sel("wpi/detail/htrie_hash.h"))
	assert.True(t, sel("wpi/expected"))
	assert.False(t, sel("wpi/readme.txt"))
}
