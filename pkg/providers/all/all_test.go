package all

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistersEveryCompetitor(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"mtn", "openserve", "rain", "telkom", "vodacom"}, r.Slugs())

	for _, slug := range r.Slugs() {
		s, err := r.Get(slug)
		require.NoError(t, err)
		assert.Equal(t, slug, s.Slug())

		def, err := r.Definition(slug)
		require.NoError(t, err)
		assert.NotEmpty(t, def.Provider.Name)
		assert.NotEmpty(t, def.Provider.BaseURLs)
	}
	assert.Len(t, r.ListActive(), 5)

	assert.Error(t, Register(r), "registering twice must fail")
}
