// Package tag resolves the Version Tag that names every image of a build.
package tag

import (
	"context"
	"strings"
	"time"
)

// Source records where a tag came from.
type Source string

const (
	SourceExternal  Source = "external"  // commit id supplied by CI
	SourceGit       Source = "git"       // local `git rev-parse --short HEAD`
	SourceTimestamp Source = "timestamp" // neither was available
)

// ExternalLength is the number of characters kept from an external commit id.
const ExternalLength = 7

// TimestampLayout formats the fallback tag.
const TimestampLayout = "20060102150405"

// Tag is an immutable build identifier.
type Tag struct {
	Value  string `json:"value" yaml:"value"`
	Source Source `json:"source" yaml:"source"`
}

func (t Tag) String() string {
	return t.Value
}

// RevisionReader returns the short commit id of the local working tree.
type RevisionReader interface {
	ShortRevision(ctx context.Context) (string, error)
}

// Resolver picks the first available tag source.
type Resolver struct {
	// ExternalCommit is the commit id handed in by the CI system, if any.
	ExternalCommit string
	// Git reads the local revision; nil skips the git source.
	Git RevisionReader
	// Now defaults to time.Now.
	Now func() time.Time
}

// Resolve returns the tag. It never fails and never returns an empty value:
// git errors fall through to the timestamp source.
func (r *Resolver) Resolve(ctx context.Context) Tag {
	if ext := strings.TrimSpace(r.ExternalCommit); ext != "" {
		if len(ext) > ExternalLength {
			ext = ext[:ExternalLength]
		}
		return Tag{Value: ext, Source: SourceExternal}
	}

	if r.Git != nil {
		if rev, err := r.Git.ShortRevision(ctx); err == nil {
			if rev = strings.TrimSpace(rev); rev != "" {
				return Tag{Value: rev, Source: SourceGit}
			}
		}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return Tag{Value: now().UTC().Format(TimestampLayout), Source: SourceTimestamp}
}

// FromImage extracts the tag from a fully qualified image reference, or
// returns "latest" when the reference carries none. Digests are ignored.
func FromImage(ref string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	slash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon > slash {
		return ref[colon+1:]
	}
	return "latest"
}
