package types

import (
	"encoding/binary"
)

// Extrinsic is an opaque transaction payload. The backend never interprets
// extrinsic bytes; execution is delegated to the runtime executor.
type Extrinsic []byte

// Header describes a block. Headers are immutable once imported and are
// identified by their content hash.
type Header struct {
	ParentHash     Hash     `json:"parent_hash"`
	Number         uint64   `json:"number"`
	StateRoot      Hash     `json:"state_root"`
	ExtrinsicsRoot Hash     `json:"extrinsics_root"`
	Digest         [][]byte `json:"digest,omitempty"`
}

// Hash computes the content hash of the header.
func (h *Header) Hash() Hash {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h.Number)
	parts := [][]byte{h.ParentHash[:], buf, h.StateRoot[:], h.ExtrinsicsRoot[:]}
	parts = append(parts, h.Digest...)
	return HashBytes(parts...)
}

// Block is a header together with its ordered extrinsics.
type Block struct {
	Header     Header      `json:"header"`
	Extrinsics []Extrinsic `json:"extrinsics"`
}

// Hash returns the block's identifying hash, which is the header hash.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// ComputeExtrinsicsRoot computes the commitment to an ordered extrinsic
// sequence stored in the header.
func ComputeExtrinsicsRoot(extrinsics []Extrinsic) Hash {
	parts := make([][]byte, 0, len(extrinsics)+1)
	count := make([]byte, 8)
	binary.BigEndian.PutUint64(count, uint64(len(extrinsics)))
	parts = append(parts, count)
	for _, ext := range extrinsics {
		h := HashBytes(ext)
		parts = append(parts, h[:])
	}
	return HashBytes(parts...)
}
