package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathBasics(t *testing.T) {
	p := NewPath("plugin.command.execute")
	assert.Equal(t, "plugin.command.execute", p.String())
	assert.Equal(t, []string{"plugin", "command", "execute"}, p.Segments())
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "plugin", p.Get(0, ""))
	assert.Equal(t, "default", p.Get(10, "default"))
}

func TestPathJoin(t *testing.T) {
	p := NewPath("a.b")
	assert.Equal(t, "a.b.c", p.Join("c").String())
	assert.Equal(t, "a.b.c.d", NewPath("a").Join("b", "c", "d").String())
	assert.Equal(t, "a.b", p.Join("").String())
}

func TestPathExactMatch(t *testing.T) {
	p := NewPath("a.b.c")
	ok, err := p.MatchingPath("a.b.c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.MatchingPath("a.b.d")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathWildcardMatch(t *testing.T) {
	pattern := NewPath("plugin.*.execute")
	ok, err := pattern.MatchingPath("plugin.command.execute")
	require.NoError(t, err)
	assert.True(t, ok)

	pattern2 := NewPath("a.**")
	ok, err = pattern2.MatchingPath("a.b.c.d.e")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPathBothWildcardsRejected(t *testing.T) {
	p1 := NewPath("a.*.c")
	_, err := p1.MatchingPath("a.*.d")
	assert.ErrorIs(t, err, ErrBothWildcard)
}

func TestPathPrefixMatch(t *testing.T) {
	p := NewPath("a.b.c")
	ok, err := p.MatchingPath("a.b")
	require.NoError(t, err)
	assert.True(t, ok)
}
