package rbac

import (
	"strings"
	"sync"

	"github.com/ncatbot/ncatbot-go/errors"
)

// ErrWildcardInRegistry is returned by AddPath
// when the path being declared carries a "*" or "**" segment. Wildcards
// are only meaningful on the pattern (checking) side of a match.
var ErrWildcardInRegistry = errors.New("rbac: wildcard segments are not allowed in a declared permission path")

type trieNode struct {
	children map[string]*trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// Trie stores declared permission paths and matches patterns (which may
// carry "*"/"**" wildcards) against them.
type Trie struct {
	mu            sync.RWMutex
	root          *trieNode
	caseSensitive bool
}

// NewTrie constructs an empty trie. When caseSensitive is false, every
// path is lowercased before storage or lookup.
func NewTrie(caseSensitive bool) *Trie {
	return &Trie{root: newTrieNode(), caseSensitive: caseSensitive}
}

func (t *Trie) formatPath(path string) string {
	if t.caseSensitive {
		return path
	}
	return strings.ToLower(path)
}

// AddPath declares path in the trie. Wildcard segments are rejected.
func (t *Trie) AddPath(path string) error {
	p := NewPath(t.formatPath(path))
	if p.HasWildcard() {
		return errors.Wrapf(ErrWildcardInRegistry, "path %q", path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.root
	for _, seg := range p.Segments() {
		child, ok := node.children[seg]
		if !ok {
			child = newTrieNode()
			node.children[seg] = child
		}
		node = child
	}
	return nil
}

// CheckPath reports whether pattern (which may carry "*"/"**" segments)
// matches some declared path in the trie. When complete is true, the
// matched node must be a leaf (no declared path extends past it);
// otherwise a match against an intermediate node is also accepted.
func (t *Trie) CheckPath(pattern string, complete bool) bool {
	segs := NewPath(t.formatPath(pattern)).Segments()

	t.mu.RLock()
	defer t.mu.RUnlock()
	return matchTrie(t.root, segs, complete)
}

func matchTrie(node *trieNode, segs []string, complete bool) bool {
	if len(segs) == 0 {
		if complete {
			return len(node.children) == 0
		}
		return true
	}
	switch segs[0] {
	case "**":
		return true
	case "*":
		for _, child := range node.children {
			if matchTrie(child, segs[1:], complete) {
				return true
			}
		}
		return false
	default:
		child, ok := node.children[segs[0]]
		if !ok {
			return false
		}
		return matchTrie(child, segs[1:], complete)
	}
}

// Paths returns every leaf path declared in the trie, in no particular
// order. Used to serialize the trie as a flat list and to rebuild it on
// restore.
func (t *Trie) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	var walk func(node *trieNode, prefix []string)
	walk = func(node *trieNode, prefix []string) {
		if len(node.children) == 0 {
			if len(prefix) > 0 {
				out = append(out, strings.Join(prefix, "."))
			}
			return
		}
		for seg, child := range node.children {
			next := make([]string, len(prefix), len(prefix)+1)
			copy(next, prefix)
			next = append(next, seg)
			walk(child, next)
		}
	}
	walk(t.root, nil)
	return out
}

// DelPath removes pattern (which may carry wildcard segments, matching
// every branch they select) from the trie. When maxMod is true and the
// deletion is an exact (wildcard-free) path, any ancestor that becomes
// childless as a result is pruned too, all the way up to the root.
func (t *Trie) DelPath(pattern string, maxMod bool) {
	segs := NewPath(t.formatPath(pattern)).Segments()
	if len(segs) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if hasWildcardSegment(segs) {
		deleteWildcard(t.root, segs)
		return
	}
	deleteExact(t.root, segs, maxMod)
}

func hasWildcardSegment(segs []string) bool {
	for _, s := range segs {
		if s == "*" || s == "**" {
			return true
		}
	}
	return false
}

func deleteExact(root *trieNode, segs []string, maxMod bool) {
	nodes := make([]*trieNode, len(segs)+1)
	nodes[0] = root
	for i, seg := range segs {
		child, ok := nodes[i].children[seg]
		if !ok {
			return
		}
		nodes[i+1] = child
	}

	last := len(segs) - 1
	delete(nodes[last].children, segs[last])
	if !maxMod {
		return
	}

	j := last
	for {
		if len(nodes[j].children) > 0 || j == 0 {
			break
		}
		delete(nodes[j-1].children, segs[j-1])
		j--
	}
}

func deleteWildcard(node *trieNode, segs []string) {
	if len(segs) == 1 {
		switch segs[0] {
		case "**", "*":
			for k := range node.children {
				delete(node.children, k)
			}
		default:
			delete(node.children, segs[0])
		}
		return
	}

	switch segs[0] {
	case "**":
		node.children = make(map[string]*trieNode)
	case "*":
		for _, child := range node.children {
			deleteWildcard(child, segs[1:])
		}
	default:
		if child, ok := node.children[segs[0]]; ok {
			deleteWildcard(child, segs[1:])
		}
	}
}
