package manifest

import (
	"bytes"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Override is a compose manifest layered over the base with a second -f.
type Override struct {
	Services map[string]OverrideService `yaml:"services"`
}

// OverrideService pins a service's image and restart policy.
type OverrideService struct {
	Image   string `yaml:"image"`
	Restart string `yaml:"restart,omitempty"`
}

// Pin returns an override binding one service to an image.
func Pin(service, image, restart string) *Override {
	return &Override{Services: map[string]OverrideService{
		service: {Image: image, Restart: restart},
	}}
}

// TagOverride returns an override that names the image of every descriptor.
func TagOverride(descriptors []Descriptor) *Override {
	o := &Override{Services: make(map[string]OverrideService, len(descriptors))}
	for _, d := range descriptors {
		o.Services[d.Name] = OverrideService{Image: d.Image}
	}
	return o
}

// Marshal renders the override as YAML. yaml.v3 sorts map keys, so the output
// is deterministic.
func (o *Override) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(o); err != nil {
		return nil, fmt.Errorf("encode override manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode override manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Digest returns the hex blake3 hash of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
