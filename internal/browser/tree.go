package browser

import (
	"sort"

	"github.com/awss/awss/internal/awsconfig"
)

// Node is one entry of the navigation tree: the root (bucket list), a
// bucket, or a folder. Children are kept sorted by prefix.
type Node struct {
	Ctx      Context
	parent   *Node
	children []*Node
	byLabel  map[string]*Node
	// Loaded marks that children were fetched at least once; expansion
	// of a loaded node never hits the network again.
	Loaded bool
}

// Children returns the child contexts in display order.
func (n *Node) Children() []Context {
	out := make([]Context, len(n.children))
	for i, child := range n.children {
		out[i] = child.Ctx
	}
	return out
}

func (n *Node) label() string {
	if n.Ctx.Prefix != "" {
		return n.Ctx.Prefix
	}
	return n.Ctx.Bucket
}

func (n *Node) attach(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
	n.byLabel[child.label()] = child
	sort.Slice(n.children, func(i, j int) bool {
		return n.children[i].label() < n.children[j].label()
	})
}

func (n *Node) detach(child *Node) {
	delete(n.byLabel, child.label())
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	child.parent = nil
}

type bucketKey struct {
	profile awsconfig.Profile
	bucket  string
}

// Tree is the node arena. Every node is registered so any context can
// be located without walking from the root.
type Tree struct {
	root        *Node
	bucketNodes map[bucketKey]*Node
	prefixNodes map[Context]*Node
}

// NewTree creates a tree with an empty bucket-list root.
func NewTree() *Tree {
	return &Tree{
		root:        newNode(Context{}),
		bucketNodes: make(map[bucketKey]*Node),
		prefixNodes: make(map[Context]*Node),
	}
}

func newNode(ctx Context) *Node {
	return &Node{Ctx: ctx, byLabel: make(map[string]*Node)}
}

// Root returns the bucket-list node.
func (t *Tree) Root() *Node { return t.root }

// Lookup finds the node for a context, if present.
func (t *Tree) Lookup(ctx Context) (*Node, bool) {
	if ctx.IsBucketList() {
		return t.root, true
	}
	if ctx.Prefix == "" {
		node, ok := t.bucketNodes[bucketKey{ctx.Profile, ctx.Bucket}]
		return node, ok
	}
	node, ok := t.prefixNodes[ctx]
	return node, ok
}

// EnsurePath creates the bucket node and every intermediate prefix node
// down to ctx, reusing nodes that already exist. The second return
// value lists the nodes created by this call, in creation order, so a
// failed speculative navigation can remove exactly what it added.
func (t *Tree) EnsurePath(ctx Context) (*Node, []*Node) {
	var created []*Node

	key := bucketKey{ctx.Profile, ctx.Bucket}
	bucket, ok := t.bucketNodes[key]
	if !ok {
		bucket = newNode(Context{Profile: ctx.Profile, Bucket: ctx.Bucket})
		t.bucketNodes[key] = bucket
		t.root.attach(bucket)
		created = append(created, bucket)
	}
	if ctx.Prefix == "" {
		return bucket, created
	}

	parent := bucket
	for _, prefix := range ancestorPrefixes(ctx.Prefix) {
		step := Context{Profile: ctx.Profile, Bucket: ctx.Bucket, Prefix: prefix}
		node, ok := t.prefixNodes[step]
		if !ok {
			node = newNode(step)
			t.prefixNodes[step] = node
			parent.attach(node)
			created = append(created, node)
		}
		parent = node
	}
	return parent, created
}

// MergeChildren adds a child node per prefix, keeping children already
// present. It reports whether anything was added.
func (t *Tree) MergeChildren(parent *Node, prefixes []string) bool {
	added := false
	for _, prefix := range prefixes {
		ctx := Context{Profile: parent.Ctx.Profile, Bucket: parent.Ctx.Bucket, Prefix: prefix}
		if _, ok := t.prefixNodes[ctx]; ok {
			continue
		}
		node := newNode(ctx)
		t.prefixNodes[ctx] = node
		parent.attach(node)
		added = true
	}
	return added
}

// Remove deletes the given nodes in reverse creation order, pruning
// both registries and the parent links. Children hanging under a
// removed node are expected to appear later in the slice.
func (t *Tree) Remove(created []*Node) {
	for i := len(created) - 1; i >= 0; i-- {
		node := created[i]
		if node.parent != nil {
			node.parent.detach(node)
		}
		if node.Ctx.Prefix == "" {
			delete(t.bucketNodes, bucketKey{node.Ctx.Profile, node.Ctx.Bucket})
		} else {
			delete(t.prefixNodes, node.Ctx)
		}
	}
}

// SwitchBucketProfile re-keys a bucket subtree after its profile
// changed, updating every registered context in place.
func (t *Tree) SwitchBucketProfile(bucket string, from, to awsconfig.Profile) {
	key := bucketKey{from, bucket}
	node, ok := t.bucketNodes[key]
	if !ok {
		return
	}
	delete(t.bucketNodes, key)
	t.bucketNodes[bucketKey{to, bucket}] = node
	rekey(t, node, to)
}

func rekey(t *Tree, node *Node, to awsconfig.Profile) {
	if node.Ctx.Prefix != "" {
		delete(t.prefixNodes, node.Ctx)
	}
	node.Ctx.Profile = to
	if node.Ctx.Prefix != "" {
		t.prefixNodes[node.Ctx] = node
	}
	for _, child := range node.children {
		rekey(t, child, to)
	}
}

// ancestorPrefixes expands "a/b/c/" into ["a/", "a/b/", "a/b/c/"].
func ancestorPrefixes(prefix string) []string {
	var out []string
	for i, r := range prefix {
		if r == '/' {
			out = append(out, prefix[:i+1])
		}
	}
	return out
}
