package versionregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAndAvailableVersions(t *testing.T) {
	r := New()
	r.Seed("left-pad", []string{"1.0.0", "1.2.0", "2.0.0-beta.1", "not-a-version"})

	versions := r.AvailableVersions("left-pad")
	require.Len(t, versions, 3)
	assert.Equal(t, "1.0.0", versions[0].String())
	assert.Equal(t, "1.2.0", versions[1].String())
	assert.Equal(t, "2.0.0-beta.1", versions[2].String())
}

func TestAvailableVersionsUnknownDependency(t *testing.T) {
	r := New()
	assert.Empty(t, r.AvailableVersions("never-seeded"))
	assert.False(t, r.Known("never-seeded"))
}

func TestLoadYAML(t *testing.T) {
	doc := []byte(`
dependencies:
  left-pad:
    - "1.0.0"
    - "1.1.0"
  right-pad:
    - "0.9.0"
`)

	r, err := LoadYAML(doc)
	require.NoError(t, err)

	assert.True(t, r.Known("left-pad"))
	assert.Len(t, r.AvailableVersions("left-pad"), 2)
	assert.Len(t, r.AvailableVersions("right-pad"), 1)
}

func TestLoadYAMLInvalid(t *testing.T) {
	_, err := LoadYAML([]byte("not: [valid"))
	require.Error(t, err)
}

func TestSeedReplacesPriorVersions(t *testing.T) {
	r := New()
	r.Seed("pkg", []string{"1.0.0"})
	r.Seed("pkg", []string{"2.0.0"})

	versions := r.AvailableVersions("pkg")
	require.Len(t, versions, 1)
	assert.Equal(t, "2.0.0", versions[0].String())
}
