package platforms_test

import (
	"testing"

	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/stretchr/testify/require"
)

func TestStaticCatalog(t *testing.T) {
	c := platforms.NewStaticCatalog(platforms.X14, platforms.Wipimo)

	t.Run("list is sorted by slug", func(t *testing.T) {
		list := c.List()
		require.Len(t, list, 2)
		require.Equal(t, "wipimo", list[0].Slug)
		require.Equal(t, "x14", list[1].Slug)
	})

	t.Run("unknown platform", func(t *testing.T) {
		_, err := c.Get("nope")
		require.ErrorIs(t, err, apperrors.ErrUnknownPlatform)
		require.False(t, c.Validate("nope"))
		require.Empty(t, c.Logo("nope", "prod"))
	})

	t.Run("logo substitutes environment", func(t *testing.T) {
		require.Equal(t, "https://prod.wipimo.fr/logo.png", c.Logo("wipimo", "prod"))
	})

	t.Run("logo without environment is returned as is", func(t *testing.T) {
		require.Equal(t, platforms.X14.LogoURL, c.Logo("x14", ""))
	})

	t.Run("register requires slug", func(t *testing.T) {
		require.ErrorIs(t, c.Register(platforms.Platform{}), apperrors.ErrInvalidRequest)
		require.NoError(t, c.Register(platforms.Platform{Descriptor: platforms.Descriptor{Slug: "acme", Name: "Acme"}}))
		require.True(t, c.Validate("acme"))
	})
}
