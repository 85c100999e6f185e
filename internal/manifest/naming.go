package manifest

import (
	"strings"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// Descriptor pairs a declared service with the image it publishes to.
type Descriptor struct {
	Name  string `json:"service" yaml:"service"`
	Image string `json:"image" yaml:"image"`
}

// SanitizeName lowercases name and collapses every run of characters outside
// [a-z0-9] into a single '-', trimming leading and trailing dashes.
func SanitizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// ImageRef builds the reference for one service. When the manifest declares
// several services the repository gets a suffix per service.
func ImageRef(repo, service, tag string, multi bool) string {
	if multi {
		if suffix := SanitizeName(service); suffix != "" {
			repo += "-" + suffix
		}
	}
	return repo + ":" + tag
}

// Descriptors names the image of every declared service. Each reference
// must belong to exactly one service; names that sanitize to the same
// suffix are a manifest error.
func (f *File) Descriptors(repo, tag string) ([]Descriptor, error) {
	names := f.ServiceNames()
	multi := len(names) > 1
	out := make([]Descriptor, 0, len(names))
	owners := make(map[string][]string, len(names))
	for _, name := range names {
		ref := ImageRef(repo, name, tag, multi)
		owners[ref] = append(owners[ref], name)
		out = append(out, Descriptor{Name: name, Image: ref})
	}
	for _, d := range out {
		if services := owners[d.Image]; len(services) > 1 {
			return nil, errors.NewManifestNameClashError(f.Path, d.Image, services)
		}
	}
	return out, nil
}
