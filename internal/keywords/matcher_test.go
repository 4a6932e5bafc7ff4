package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherGroups(t *testing.T) {
	m := NewMatcher(map[string][]string{
		"fire":    {"fire", "smoke"},
		"gas":     {"gas leak"},
		"garbage": {"garbage", "waste"},
	})

	hits := m.Match("Thick SMOKE near the  garbage dump")
	assert.True(t, hits.Has("fire"))
	assert.True(t, hits.Has("garbage"))
	assert.False(t, hits.Has("gas"))
	assert.Equal(t, []string{"fire", "garbage"}, hits.Groups())
}

func TestMatcherSharedKeyword(t *testing.T) {
	m := NewMatcher(map[string][]string{
		"police": {"theft"},
		"crime":  {"theft"},
	})
	hits := m.Match("bike theft reported")
	assert.True(t, hits.Has("police"))
	assert.True(t, hits.Has("crime"))
}

func TestMatcherEmpty(t *testing.T) {
	m := NewMatcher(nil)
	assert.Empty(t, m.Match("anything"))

	var nilMatcher *Matcher
	assert.Empty(t, nilMatcher.Match("anything"))
}
