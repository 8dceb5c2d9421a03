// Package env resolves the local directories upsync works in.
package env

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// WorkDir returns the default work directory, <UserCacheDir>/.upsync.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".upsync"), nil
}

// Layout describes the directories under a work directory.
//
//	workDir/
//	  src/<key>/       # git working copies, one per upstream location
//	  release/<key>/   # extracted release archives, one per archive URL
//	  scratch/         # temporary project roots used by verify
type Layout struct {
	Root string
}

// SourceDir returns the git working copy directory for location.
func (l Layout) SourceDir(location string) string {
	return filepath.Join(l.Root, "src", Key(location))
}

// ReleaseDir returns the extraction directory for an archive URL.
func (l Layout) ReleaseDir(archiveURL string) string {
	return filepath.Join(l.Root, "release", Key(archiveURL))
}

// ScratchDir returns the parent of temporary project roots.
func (l Layout) ScratchDir() string {
	return filepath.Join(l.Root, "scratch")
}

// Key maps a URL to a single, readable directory name. The name keeps the
// last path element of the URL and appends a short hash of the full URL so
// that distinct locations never share a directory.
func Key(location string) string {
	sum := sha256.Sum256([]byte(location))
	base := strings.TrimSuffix(strings.TrimRight(location, "/"), ".git")
	if i := strings.LastIndexAny(base, "/:"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "upstream"
	}
	return base + "-" + hex.EncodeToString(sum[:6])
}
