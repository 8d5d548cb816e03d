package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenterDrain(t *testing.T) {
	c := NewCenter(10, nil)
	c.Post("a", "Error", "boom", VariantDestructive)
	c.For("a").Post("Saved", "", "")
	c.Post("b", "Other", "", VariantDefault)

	got := c.Drain("a")
	require.Len(t, got, 2)
	assert.Equal(t, "Error", got[0].Title)
	assert.Equal(t, VariantDestructive, got[0].Variant)
	assert.Equal(t, VariantDefault, got[1].Variant)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	assert.Empty(t, c.Drain("a"))
	assert.Len(t, c.Drain("b"), 1)
}

func TestCenterEvictsOldestPerDevice(t *testing.T) {
	c := NewCenter(3, nil)
	for i := 0; i < 5; i++ {
		c.Post("a", fmt.Sprintf("n%d", i), "", VariantDefault)
	}
	c.Post("b", "keep", "", VariantDefault)

	got := c.Drain("a")
	require.Len(t, got, 3)
	assert.Equal(t, "n2", got[0].Title)
	assert.Equal(t, "n4", got[2].Title)
	assert.Len(t, c.Drain("b"), 1)
}
