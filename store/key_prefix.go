package store

// Declare database key prefixes for chain metadata. Trie nodes carry their
// own prefix in the trie package; everything else lives here.
const (
	PrefixHeader    = "hdr:"  // + 32-byte block hash => HeaderRecord JSON
	PrefixBody      = "body:" // + 32-byte block hash => extrinsics JSON
	PrefixChildren  = "chl:"  // + 32-byte block hash => child hashes JSON
	PrefixCanonical = "num:"  // + 8-byte big-endian number => canonical hash

	PrefixMeta        = "meta:"
	MetaKeyBest       = "best"
	MetaKeyFinalized  = "finalized"
	MetaKeyBestWeight = "best_weight"
)
