package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"web", "web"},
		{"Worker_Queue", "worker-queue"},
		{"api--v2", "api-v2"},
		{"__admin__", "admin"},
		{"My App.Service", "my-app-service"},
		{"ÄPI", "pi"},
		{"123", "123"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestImageRef(t *testing.T) {
	assert.Equal(t, "ghcr.io/acme/shop:3f9c2ab", ImageRef("ghcr.io/acme/shop", "web", "3f9c2ab", false))
	assert.Equal(t, "ghcr.io/acme/shop-web:3f9c2ab", ImageRef("ghcr.io/acme/shop", "web", "3f9c2ab", true))
	assert.Equal(t, "ghcr.io/acme/shop-worker-queue:3f9c2ab", ImageRef("ghcr.io/acme/shop", "Worker_Queue", "3f9c2ab", true))
	assert.Equal(t, "ghcr.io/acme/shop:3f9c2ab", ImageRef("ghcr.io/acme/shop", "___", "3f9c2ab", true))
}

func TestDescriptorsSingleService(t *testing.T) {
	f, err := Parse([]byte("services:\n  app:\n    build: .\n"), "docker-compose.yml")
	require.NoError(t, err)

	got, err := f.Descriptors("ghcr.io/acme/shop", "abc1234")
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{Name: "app", Image: "ghcr.io/acme/shop:abc1234"}}, got)
}

func TestDescriptorsMultiService(t *testing.T) {
	f, err := Parse([]byte(shopManifest), "docker-compose.yml")
	require.NoError(t, err)

	got, err := f.Descriptors("ghcr.io/acme/shop", "abc1234")
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{
		{Name: "Worker_Queue", Image: "ghcr.io/acme/shop-worker-queue:abc1234"},
		{Name: "db", Image: "ghcr.io/acme/shop-db:abc1234"},
		{Name: "web", Image: "ghcr.io/acme/shop-web:abc1234"},
	}, got)
}

func TestDescriptorsRejectsClashingNames(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		ref      string
	}{
		{"underscore and dot", "services:\n  web_app:\n    build: .\n  web.app:\n    build: .\n", "ghcr.io/acme/shop-web-app:abc1234"},
		{"case only", "services:\n  API:\n    build: .\n  api:\n    build: .\n", "ghcr.io/acme/shop-api:abc1234"},
		{"no usable characters", "services:\n  ___:\n    build: .\n  '...':\n    build: .\n", "ghcr.io/acme/shop:abc1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.manifest), "docker-compose.yml")
			require.NoError(t, err)

			got, err := f.Descriptors("ghcr.io/acme/shop", "abc1234")
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.HasCode(err, errors.ErrCodeManifestNameClash))
			assert.Contains(t, err.Error(), tt.ref)
		})
	}
}
