// Package registry talks to OCI registries directly, without the docker CLI.
package registry

import (
	"context"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/felixgeelhaar/deckhand/internal/version"
)

// Options configures a Client.
type Options struct {
	// Username and Token authenticate with basic auth. When empty the docker
	// credential store (~/.docker/config.json) is used.
	Username string
	Token    string

	// Keychain overrides the credential lookup entirely.
	Keychain authn.Keychain

	// Insecure allows plain HTTP registries.
	Insecure bool

	UserAgent string
}

// Client queries image manifests.
type Client struct {
	opts Options
}

// New creates a registry client.
func New(opts Options) *Client {
	if opts.Keychain == nil {
		opts.Keychain = authn.DefaultKeychain
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "deckhand/" + version.Version
	}
	return &Client{opts: opts}
}

func (c *Client) parse(ref string) (name.Reference, error) {
	var nameOpts []name.Option
	if c.opts.Insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	return name.ParseReference(ref, nameOpts...)
}

func (c *Client) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithUserAgent(c.opts.UserAgent),
	}
	if c.opts.Username != "" && c.opts.Token != "" {
		opts = append(opts, remote.WithAuth(authn.FromConfig(authn.AuthConfig{
			Username: c.opts.Username,
			Password: c.opts.Token,
		})))
	} else {
		opts = append(opts, remote.WithAuthFromKeychain(c.opts.Keychain))
	}
	return opts
}

// Digest returns the manifest digest the registry serves for ref.
func (c *Client) Digest(ctx context.Context, ref string) (string, error) {
	r, err := c.parse(ref)
	if err != nil {
		return "", Classify(err, ref)
	}
	desc, err := remote.Head(r, c.remoteOptions(ctx)...)
	if err != nil {
		return "", Classify(err, ref)
	}
	return desc.Digest.String(), nil
}

// Diagnose explains why a pull of ref may have failed. It returns nil when
// the registry serves the image, which points at a host-side problem.
func (c *Client) Diagnose(ctx context.Context, ref string) error {
	_, err := c.Digest(ctx, ref)
	return err
}

// Host returns the registry host of a repository coordinate, as expected by
// `docker login`.
func Host(repo string) (string, error) {
	r, err := name.NewRepository(repo)
	if err != nil {
		return "", Classify(err, repo)
	}
	if r.RegistryStr() == name.DefaultRegistry {
		return "docker.io", nil
	}
	return r.RegistryStr(), nil
}

// Repository strips the tag and digest from an image reference, leaving it
// otherwise exactly as written.
func Repository(ref string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		ref = ref[:colon]
	}
	return ref
}
