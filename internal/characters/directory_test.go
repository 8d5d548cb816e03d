package characters

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundledDirectory(t *testing.T) {
	d, err := Bundled()
	require.NoError(t, err)
	require.Greater(t, d.Len(), 0)

	for _, c := range d.All() {
		assert.NotEmpty(t, c.Name, c.Handle)
		assert.NotEmpty(t, c.Bio, c.Handle)
		got, err := d.Get(c.Handle)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestGetUnknownHandle(t *testing.T) {
	d, err := Bundled()
	require.NoError(t, err)

	_, err = d.Get("nobody")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestLoadEmpty(t *testing.T) {
	for _, data := range []string{"", "null", "[]"} {
		_, err := Load([]byte(data))
		assert.True(t, errors.Is(err, domain.ErrEmptyCharacterList), "input %q: %v", data, err)
	}
}

func TestLoadRejectsDuplicates(t *testing.T) {
	_, err := Load([]byte("- {handle: a, name: A}\n- {handle: a, name: B}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestSearch(t *testing.T) {
	d, err := Load([]byte(`
- {handle: a, name: Ada Lovelace, shortDescription: Mathematician}
- {handle: m, name: Marcus, shortDescription: Stoic emperor}
`))
	require.NoError(t, err)

	assert.Len(t, d.Search(""), 2)
	got := d.Search("STOIC")
	require.Len(t, got, 1)
	assert.Equal(t, "m", got[0].Handle)
	assert.Empty(t, d.Search("pirate"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {handle: x, name: X, bio: '  seed  '}\n"), 0o600))

	d, err := LoadFile(path)
	require.NoError(t, err)
	c, err := d.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "seed", c.Bio)
}

func TestEmpty(t *testing.T) {
	d := Empty()
	assert.Zero(t, d.Len())
	assert.Empty(t, d.Search(""))
	_, err := d.Get("ada")
	assert.True(t, errdefs.IsNotFound(err))
}
