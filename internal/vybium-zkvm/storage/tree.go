package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
)

// Backend is the storage interface consumed by the execution engine
type Backend interface {
	// Read returns the value stored under (contract, key), zero if unset
	Read(contract core.Address, key core.Word) (core.Word, error)

	// Write stores value under (contract, key) and returns the new root
	Write(contract core.Address, key, value core.Word) (core.Word, error)

	// Path returns the inclusion path of (contract, key) against the current root
	Path(contract core.Address, key core.Word) (*Path, error)

	// Root returns the current state root
	Root() core.Word
}

// Path is a Merkle inclusion path. Siblings[d-1] is the sibling of the
// path node at depth d, for d in 1..TreeHeight.
type Path struct {
	TreeKey  core.Word
	Value    core.Word
	Leaf     core.Word
	Siblings [core.TreeHeight]core.Word
	Root     core.Word
}

var _ Backend = (*Tree)(nil)

var (
	rootKey    = []byte("root")
	emptyNodes = computeEmptyNodes()
)

// computeEmptyNodes returns the hash of an empty subtree rooted at each depth
func computeEmptyNodes() [core.TreeHeight + 1]core.Word {
	var empty [core.TreeHeight + 1]core.Word
	for d := core.TreeHeight - 1; d >= 0; d-- {
		empty[d], _ = poseidon.HashWords(poseidon.Variant, empty[d+1], empty[d+1])
	}
	return empty
}

// EmptyRoot is the root of a tree with no values
func EmptyRoot() core.Word {
	return emptyNodes[0]
}

// TreeKey derives the tree position of a contract storage slot
func TreeKey(contract core.Address, key core.Word) (core.Word, poseidon.RoundStates) {
	return poseidon.HashWords(poseidon.Normal, contract, key)
}

// LeafHash returns the leaf node of a slot. A zero value is an empty leaf
// and is not hashed.
func LeafHash(treeKey, value core.Word) (core.Word, *poseidon.RoundStates) {
	if value.IsZero() {
		return core.ZeroWord, nil
	}
	leaf, rs := poseidon.HashWords(poseidon.Normal, treeKey, value)
	return leaf, &rs
}

// NodeHash combines a path node with its sibling; bit 1 means the path
// node is the right child.
func NodeHash(bit uint64, path, sibling core.Word) core.Word {
	if bit == 1 {
		h, _ := poseidon.HashWords(poseidon.Variant, sibling, path)
		return h
	}
	h, _ := poseidon.HashWords(poseidon.Variant, path, sibling)
	return h
}

// ComputeRoot folds a path from the leaf up to the root
func (p *Path) ComputeRoot() core.Word {
	node := p.Leaf
	for d := core.TreeHeight; d >= 1; d-- {
		node = NodeHash(p.TreeKey.Bit(d-1), node, p.Siblings[d-1])
	}
	return node
}

// Verify checks that the path folds to its claimed root
func (p *Path) Verify() bool {
	return p.ComputeRoot() == p.Root
}

// Tree is a sparse Merkle tree of height TreeHeight backed by a NodeStore
type Tree struct {
	mu    sync.Mutex
	store *NodeStore
	root  core.Word
}

// NewTree opens a tree over store, restoring a persisted root if present
func NewTree(store *NodeStore) (*Tree, error) {
	t := &Tree{store: store, root: EmptyRoot()}

	raw, ok, err := store.Get(rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load root: %w", err)
	}
	if ok {
		root, err := decodeWord(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt root: %w", err)
		}
		t.root = root
	}
	return t, nil
}

// OpenTree opens a tree at path (empty path = in-memory)
func OpenTree(path string) (*Tree, error) {
	store, err := OpenNodeStore(path)
	if err != nil {
		return nil, err
	}
	return NewTree(store)
}

// Close releases the node store
func (t *Tree) Close() error {
	return t.store.Close()
}

// Root returns the current state root
func (t *Tree) Root() core.Word {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Read returns the value stored under (contract, key)
func (t *Tree) Read(contract core.Address, key core.Word) (core.Word, error) {
	treeKey, _ := TreeKey(contract, key)
	raw, ok, err := t.store.Get(valueKey(treeKey))
	if err != nil {
		return core.ZeroWord, err
	}
	if !ok {
		return core.ZeroWord, nil
	}
	return decodeWord(raw)
}

// Write stores value and recomputes the path up to the root
func (t *Tree) Write(contract core.Address, key, value core.Word) (core.Word, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	treeKey, _ := TreeKey(contract, key)
	bits := pathBits(treeKey)

	updates := make(map[string][]byte, core.TreeHeight+3)
	if value.IsZero() {
		updates[string(valueKey(treeKey))] = nil
	} else {
		updates[string(valueKey(treeKey))] = encodeWord(value)
	}

	node, _ := LeafHash(treeKey, value)
	updates[string(nodeKey(core.TreeHeight, bits))] = encodeWord(node)

	for d := core.TreeHeight; d >= 1; d-- {
		sibling, err := t.node(d, siblingBits(bits, d))
		if err != nil {
			return core.ZeroWord, err
		}
		node = NodeHash(treeKey.Bit(d-1), node, sibling)
		updates[string(nodeKey(d-1, bits))] = encodeWord(node)
	}
	updates[string(rootKey)] = encodeWord(node)

	if err := t.store.Commit(updates); err != nil {
		return core.ZeroWord, fmt.Errorf("failed to persist write: %w", err)
	}
	t.root = node
	return node, nil
}

// Path returns the inclusion path of (contract, key)
func (t *Tree) Path(contract core.Address, key core.Word) (*Path, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	treeKey, _ := TreeKey(contract, key)
	bits := pathBits(treeKey)

	p := &Path{TreeKey: treeKey, Root: t.root}

	leaf, err := t.node(core.TreeHeight, bits)
	if err != nil {
		return nil, err
	}
	p.Leaf = leaf

	raw, ok, err := t.store.Get(valueKey(treeKey))
	if err != nil {
		return nil, err
	}
	if ok {
		if p.Value, err = decodeWord(raw); err != nil {
			return nil, err
		}
	}

	for d := 1; d <= core.TreeHeight; d++ {
		if p.Siblings[d-1], err = t.node(d, siblingBits(bits, d)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// node loads the node at depth whose path prefix is bits, defaulting to
// the empty subtree hash
func (t *Tree) node(depth int, bits [32]byte) (core.Word, error) {
	raw, ok, err := t.store.Get(nodeKey(depth, bits))
	if err != nil {
		return core.ZeroWord, err
	}
	if !ok {
		return emptyNodes[depth], nil
	}
	return decodeWord(raw)
}

// pathBits lays the tree key out as a big-endian bit string: limb 0 first
func pathBits(treeKey core.Word) [32]byte {
	var out [32]byte
	for i, v := range treeKey.Values() {
		binary.BigEndian.PutUint64(out[i*8:], v)
	}
	return out
}

func siblingBits(bits [32]byte, depth int) [32]byte {
	i := depth - 1
	bits[i/8] ^= 0x80 >> (i % 8)
	return bits
}

// nodeKey is 'n' ‖ depth ‖ first depth bits of the path
func nodeKey(depth int, bits [32]byte) []byte {
	key := make([]byte, 3+32)
	key[0] = 'n'
	binary.BigEndian.PutUint16(key[1:3], uint16(depth))
	for i := 0; i < depth; i++ {
		if bits[i/8]&(0x80>>(i%8)) != 0 {
			key[3+i/8] |= 0x80 >> (i % 8)
		}
	}
	return key
}

func valueKey(treeKey core.Word) []byte {
	return append([]byte{'v'}, encodeWord(treeKey)...)
}

func encodeWord(w core.Word) []byte {
	out := make([]byte, 8*core.WordLength)
	for i, v := range w.Values() {
		binary.LittleEndian.PutUint64(out[i*8:], v)
	}
	return out
}

func decodeWord(raw []byte) (core.Word, error) {
	var w core.Word
	if len(raw) != 8*core.WordLength {
		return w, fmt.Errorf("word encoding has %d bytes, want %d", len(raw), 8*core.WordLength)
	}
	for i := range w {
		w[i] = field.New(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return w, nil
}
