// Package manifest reads compose build manifests and writes the override
// manifests that pin services to image references.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// File is the subset of a compose manifest deckhand reads.
type File struct {
	Path     string             `yaml:"-"`
	Services map[string]Service `yaml:"services"`
}

// Service is one entry under `services:`.
type Service struct {
	Image   string    `yaml:"image,omitempty"`
	Build   yaml.Node `yaml:"build,omitempty"`
	Ports   []Port    `yaml:"ports,omitempty"`
	Restart string    `yaml:"restart,omitempty"`
}

// Port is a published port in either compose short ("8080:3000/tcp") or
// long ({target, published}) syntax.
type Port struct {
	HostIP    string
	Published string // host side, may be a range; empty when only exposed
	Target    string
	Protocol  string
}

// UnmarshalYAML accepts both port syntaxes.
func (p *Port) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParsePort(node.Value)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case yaml.MappingNode:
		var long struct {
			Target    string `yaml:"target"`
			Published string `yaml:"published"`
			HostIP    string `yaml:"host_ip"`
			Protocol  string `yaml:"protocol"`
		}
		if err := node.Decode(&long); err != nil {
			return err
		}
		*p = Port{HostIP: long.HostIP, Published: long.Published, Target: long.Target, Protocol: long.Protocol}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported port syntax", node.Line)
	}
}

// ParsePort parses compose short port syntax: [[ip:]published:]target[/proto].
func ParsePort(s string) (Port, error) {
	var p Port
	spec, proto, _ := strings.Cut(strings.TrimSpace(s), "/")
	p.Protocol = proto

	// The host address may itself contain colons; the last two fields are
	// always published and target.
	parts := strings.Split(spec, ":")
	switch {
	case len(parts) == 1:
		p.Target = parts[0]
	case len(parts) == 2:
		p.Published, p.Target = parts[0], parts[1]
	default:
		n := len(parts)
		p.HostIP = strings.Join(parts[:n-2], ":")
		p.Published, p.Target = parts[n-2], parts[n-1]
	}
	if p.Target == "" {
		return Port{}, fmt.Errorf("invalid port %q", s)
	}
	return p, nil
}

// HostPort returns the first host port of a published mapping, or 0.
func (p Port) HostPort() int {
	first, _, _ := strings.Cut(p.Published, "-")
	n, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return n
}

// Load reads and parses a manifest from the local filesystem.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	return Parse(data, path)
}

// Parse decodes manifest bytes. A manifest without services is an error.
func Parse(data []byte, path string) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewManifestInvalidError(path, err)
	}
	if len(f.Services) == 0 {
		return nil, errors.NewManifestEmptyError(path)
	}
	f.Path = path
	return &f, nil
}

// ServiceNames returns the declared services in a stable order.
func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service looks up a declared service.
func (f *File) Service(name string) (Service, error) {
	svc, ok := f.Services[name]
	if !ok {
		return Service{}, errors.NewManifestNoServiceError(f.Path, name)
	}
	return svc, nil
}

// HostPort returns the first host port a service publishes, or 0.
func (f *File) HostPort(name string) int {
	for _, p := range f.Services[name].Ports {
		if n := p.HostPort(); n > 0 {
			return n
		}
	}
	return 0
}
