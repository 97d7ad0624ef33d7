package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeywords(t *testing.T) {
	t.Parallel()

	t.Run("lowercases, dedupes and sorts", func(t *testing.T) {
		t.Parallel()
		got := NormalizeKeywords([]string{"Go", "coffee", "GO", " Coffee ", "api"})
		assert.Equal(t, []string{"api", "coffee", "go"}, got)
	})

	t.Run("drops empty entries", func(t *testing.T) {
		t.Parallel()
		got := NormalizeKeywords([]string{"", "  ", "x"})
		assert.Equal(t, []string{"x"}, got)
	})

	t.Run("stable under repeated application", func(t *testing.T) {
		t.Parallel()
		once := NormalizeKeywords([]string{"B", "a", "b", "C"})
		twice := NormalizeKeywords(once)
		assert.Equal(t, once, twice)
	})
}

func TestMemoryNormalize(t *testing.T) {
	t.Parallel()

	t.Run("clamps priority into unit interval", func(t *testing.T) {
		t.Parallel()
		m := Memory{Priority: -0.3}
		m.Normalize()
		assert.Equal(t, 0.0, m.Priority)

		m = Memory{Priority: 1.7}
		m.Normalize()
		assert.Equal(t, 1.0, m.Priority)

		m = Memory{Priority: 0.42}
		m.Normalize()
		assert.Equal(t, 0.42, m.Priority)
	})

	t.Run("normalizes keywords", func(t *testing.T) {
		t.Parallel()
		m := Memory{Keywords: []string{"Tea", "tea", "ZEN"}}
		m.Normalize()
		assert.Equal(t, []string{"tea", "zen"}, m.Keywords)
	})
}

func TestStringToMemoryCategory(t *testing.T) {
	t.Parallel()

	for _, category := range AllMemoryCategories {
		parsed, err := StringToMemoryCategory(string(category))
		require.NoError(t, err)
		assert.Equal(t, category, parsed)
	}

	parsed, err := StringToMemoryCategory("technical projects")
	require.NoError(t, err)
	assert.Equal(t, MemoryCategoryTechnical, parsed)

	parsed, err = StringToMemoryCategory("SELF-CARE")
	require.NoError(t, err)
	assert.Equal(t, MemoryCategorySelfCare, parsed)

	_, err = StringToMemoryCategory("astrology")
	assert.Error(t, err)
}

func TestContactDisplayName(t *testing.T) {
	t.Parallel()

	c := Contact{Id: "user_1", Aliases: []string{"Ada", "A."}}
	assert.Equal(t, "Ada", c.DisplayName())

	c = Contact{Id: "user_2"}
	assert.Equal(t, "user_2", c.DisplayName())
}
