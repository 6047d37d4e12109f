package trie

import (
	"encoding/binary"
	"fmt"

	"chaincore/types"
)

// Node wire tags. The encoding is deterministic so equal subtrees always
// produce equal node hashes.
const (
	tagLeaf   byte = 0x01
	tagBranch byte = 0x02
)

const branchWidth = 16

// leafNode holds a value at the end of a compressed path.
type leafNode struct {
	path  []byte // nibbles remaining below the parent
	value []byte
}

// branchNode is a path-compressed branch: a shared nibble prefix, up to 16
// child references and an optional value for a key terminating here.
// Children are referenced by content hash; a zero hash means no child.
type branchNode struct {
	path     []byte
	children [branchWidth]types.Hash
	value    []byte
	hasValue bool
}

func (b *branchNode) childCount() int {
	n := 0
	for _, c := range b.children {
		if !c.IsZero() {
			n++
		}
	}
	return n
}

// soleChild returns the only child's nibble index, or -1 if the branch has
// zero or multiple children.
func (b *branchNode) soleChild() int {
	idx := -1
	for i, c := range b.children {
		if c.IsZero() {
			continue
		}
		if idx >= 0 {
			return -1
		}
		idx = i
	}
	return idx
}

func encodeLeaf(n *leafNode) []byte {
	packed := packNibbles(n.path)
	out := make([]byte, 0, 1+2+len(packed)+4+len(n.value))
	out = append(out, tagLeaf)
	out = binary.BigEndian.AppendUint16(out, uint16(len(n.path)))
	out = append(out, packed...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(n.value)))
	out = append(out, n.value...)
	return out
}

func encodeBranch(n *branchNode) []byte {
	packed := packNibbles(n.path)
	out := make([]byte, 0, 1+2+len(packed)+2+branchWidth*types.HashSize+5+len(n.value))
	out = append(out, tagBranch)
	out = binary.BigEndian.AppendUint16(out, uint16(len(n.path)))
	out = append(out, packed...)

	var bitmap uint16
	for i, c := range n.children {
		if !c.IsZero() {
			bitmap |= 1 << uint(i)
		}
	}
	out = binary.BigEndian.AppendUint16(out, bitmap)
	for _, c := range n.children {
		if !c.IsZero() {
			out = append(out, c[:]...)
		}
	}

	if n.hasValue {
		out = append(out, 1)
		out = binary.BigEndian.AppendUint32(out, uint32(len(n.value)))
		out = append(out, n.value...)
	} else {
		out = append(out, 0)
	}
	return out
}

// decodeNode parses an encoded node into a leafNode or branchNode.
func decodeNode(data []byte) (interface{}, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("truncated trie node: %d bytes", len(data))
	}
	tag := data[0]
	pathLen := int(binary.BigEndian.Uint16(data[1:3]))
	packedLen := (pathLen + 1) / 2
	rest := data[3:]
	if len(rest) < packedLen {
		return nil, fmt.Errorf("truncated trie node path")
	}
	path := unpackNibbles(rest[:packedLen], pathLen)
	rest = rest[packedLen:]

	switch tag {
	case tagLeaf:
		if len(rest) < 4 {
			return nil, fmt.Errorf("truncated leaf value length")
		}
		valLen := int(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if len(rest) != valLen {
			return nil, fmt.Errorf("leaf value length mismatch: want %d have %d", valLen, len(rest))
		}
		return &leafNode{path: path, value: append([]byte(nil), rest...)}, nil

	case tagBranch:
		if len(rest) < 2 {
			return nil, fmt.Errorf("truncated branch bitmap")
		}
		bitmap := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		node := &branchNode{path: path}
		for i := 0; i < branchWidth; i++ {
			if bitmap&(1<<uint(i)) == 0 {
				continue
			}
			if len(rest) < types.HashSize {
				return nil, fmt.Errorf("truncated branch child")
			}
			copy(node.children[i][:], rest[:types.HashSize])
			rest = rest[types.HashSize:]
		}
		if len(rest) < 1 {
			return nil, fmt.Errorf("truncated branch value flag")
		}
		if rest[0] == 1 {
			rest = rest[1:]
			if len(rest) < 4 {
				return nil, fmt.Errorf("truncated branch value length")
			}
			valLen := int(binary.BigEndian.Uint32(rest[:4]))
			rest = rest[4:]
			if len(rest) != valLen {
				return nil, fmt.Errorf("branch value length mismatch: want %d have %d", valLen, len(rest))
			}
			node.hasValue = true
			node.value = append([]byte(nil), rest...)
		} else if len(rest) != 1 {
			return nil, fmt.Errorf("trailing bytes after branch node")
		}
		return node, nil

	default:
		return nil, fmt.Errorf("unknown trie node tag 0x%02x", tag)
	}
}
