package engine

import (
	"context"
	"strings"

	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/verscmp"
	"github.com/goplus/upsync/library"
	"golang.org/x/mod/semver"
)

// Remote answers questions about upstream repositories. vcs.VCS
// implements it.
type Remote interface {
	Tags(ctx context.Context, remote string) ([]string, error)
	Latest(ctx context.Context, remote string) (string, error)
}

// Update compares a pinned revision with its upstream.
type Update struct {
	Name    string
	Current string
	// Latest is the newest comparable revision, empty when the pinned
	// revision cannot be compared.
	Latest   string
	Outdated bool
}

// CheckUpdate looks for a newer upstream revision of d. Commits are
// compared with the remote HEAD. Tags of the form [prefix]vX.Y.Z are
// compared with the remote tags sharing the prefix and major version;
// pre-releases are only considered when the pinned tag is one. Other tags
// holding a number, such as "curl-8_5_0", are compared with the tags
// sharing their non-numeric prefix in GNU version order.
func (e *Engine) CheckUpdate(ctx context.Context, d *library.Descriptor) (*Update, error) {
	u := &Update{Name: d.Name, Current: d.Revision}
	if e.remote == nil {
		return nil, fault.Errorf(fault.Config, "check update", d.Name, "no remote configured")
	}
	if d.URL == "" {
		return u, nil
	}

	if d.RevisionKind() == library.Commit {
		head, err := e.remote.Latest(ctx, d.URL)
		if err != nil {
			return nil, fault.New(fault.Fetch, "check update", d.URL, err)
		}
		u.Latest = head
		u.Outdated = !strings.HasPrefix(head, strings.ToLower(d.Revision))
		return u, nil
	}

	tags, err := e.remote.Tags(ctx, d.URL)
	if err != nil {
		return nil, fault.New(fault.Fetch, "check update", d.URL, err)
	}
	if prefix, current, ok := splitTag(d.Revision); ok {
		u.Latest = prefix + latestSemver(prefix, current, tags)
	} else if prefix, current, ok := splitVersion(d.Revision); ok {
		u.Latest = prefix + latestVersion(prefix, current, tags)
	} else {
		return u, nil
	}
	u.Outdated = u.Latest != d.Revision
	return u, nil
}

func latestSemver(prefix, current string, tags []string) string {
	best := current
	pre := semver.Prerelease(current) != ""
	for _, tag := range tags {
		p, v, ok := splitTag(tag)
		if !ok || p != prefix || semver.Major(v) != semver.Major(current) || (!pre && semver.Prerelease(v) != "") {
			continue
		}
		if semver.Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

// latestVersion orders tags like "curl-8_5_0" by GNU version order. Tags
// with letters in the version part count as pre-releases.
func latestVersion(prefix, current string, tags []string) string {
	best := current
	pre := hasLetter(current)
	for _, tag := range tags {
		p, v, ok := splitVersion(tag)
		if !ok || p != prefix || (!pre && hasLetter(v)) {
			continue
		}
		if verscmp.Less(best, v) {
			best = v
		}
	}
	return best
}

// splitTag splits "release/v9.2.0" into "release/" and "v9.2.0". ok is
// false when the version part is not a semantic version.
func splitTag(tag string) (prefix, version string, ok bool) {
	i := strings.LastIndex(tag, "/")
	prefix, version = tag[:i+1], tag[i+1:]
	return prefix, version, semver.IsValid(version)
}

// splitVersion splits "curl-8_5_0" into "curl-" and "8_5_0" at the first
// digit of the last path element.
func splitVersion(tag string) (prefix, version string, ok bool) {
	i := strings.LastIndex(tag, "/") + 1
	j := strings.IndexAny(tag[i:], "0123456789")
	if j < 0 {
		return "", "", false
	}
	return tag[:i+j], tag[i+j:], true
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
	}) >= 0
}
