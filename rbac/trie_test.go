package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieAddAndCheckExisting(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))

	assert.True(t, trie.CheckPath("a.b.c", false))
	assert.True(t, trie.CheckPath("a.b", false))
	assert.True(t, trie.CheckPath("a", false))
	assert.False(t, trie.CheckPath("a.b.d", false))
	assert.False(t, trie.CheckPath("x.y.z", false))
}

func TestTrieAddWildcardRejected(t *testing.T) {
	trie := NewTrie(true)
	assert.Error(t, trie.AddPath("a.*.c"))
	assert.Error(t, trie.AddPath("a.**"))
}

func TestTrieCheckPathComplete(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))

	assert.True(t, trie.CheckPath("a.b.c", true))
	assert.False(t, trie.CheckPath("a.b", true))
}

func TestTrieCheckPathWildcards(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))
	require.NoError(t, trie.AddPath("a.d.e"))

	assert.True(t, trie.CheckPath("a.*.c", false))
	assert.True(t, trie.CheckPath("a.*.e", false))
	assert.False(t, trie.CheckPath("a.*.x", false))

	require.NoError(t, trie.AddPath("a.b.c.d"))
	assert.True(t, trie.CheckPath("a.**", false))
	assert.True(t, trie.CheckPath("a.b.**", false))
}

func TestTrieDelPathPreservesSiblings(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))
	require.NoError(t, trie.AddPath("a.b.d"))

	trie.DelPath("a.b.c", false)
	assert.False(t, trie.CheckPath("a.b.c", true))
	assert.True(t, trie.CheckPath("a.b.d", true))
}

func TestTrieDelPathMaxMod(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))
	trie.DelPath("a.b.c", true)
	assert.Empty(t, trie.Paths())
}

func TestTrieDelPathWildcard(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))
	require.NoError(t, trie.AddPath("a.d.c"))

	trie.DelPath("a.*.c", false)
	assert.False(t, trie.CheckPath("a.b.c", true))
	assert.False(t, trie.CheckPath("a.d.c", true))
}

func TestTrieDelPathDoubleWildcard(t *testing.T) {
	trie := NewTrie(true)
	require.NoError(t, trie.AddPath("a.b.c"))
	require.NoError(t, trie.AddPath("a.b.d.e"))
	require.NoError(t, trie.AddPath("a.b.f"))

	trie.DelPath("a.b.**", false)
	assert.False(t, trie.CheckPath("a.b.c", true))
	assert.False(t, trie.CheckPath("a.b.d.e", true))
	assert.False(t, trie.CheckPath("a.b.f", true))
}

func TestTrieCaseSensitivity(t *testing.T) {
	sensitive := NewTrie(true)
	require.NoError(t, sensitive.AddPath("Plugin.Command"))
	assert.True(t, sensitive.CheckPath("Plugin.Command", true))
	assert.False(t, sensitive.CheckPath("plugin.command", true))

	insensitive := NewTrie(false)
	require.NoError(t, insensitive.AddPath("Plugin.Command"))
	assert.True(t, insensitive.CheckPath("Plugin.Command", true))
	assert.True(t, insensitive.CheckPath("plugin.command", true))
	assert.True(t, insensitive.CheckPath("PLUGIN.COMMAND", true))
}
