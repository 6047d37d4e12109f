package importer

import (
	chainerrors "chaincore/errors"
	"chaincore/types"
)

// route is the canonical-path delta caused by a best-block change: the blocks
// leaving the canonical chain (tip first), the blocks entering it (ancestor
// first, new tip last), the number index updates and the numbers vacated when
// the chain shortens.
type route struct {
	retracted []types.Hash
	enacted   []types.Hash
	canonical map[uint64]types.Hash
	drop      []uint64
}

// cursor tracks one side of the walk back to the common ancestor.
type cursor struct {
	hash   types.Hash
	number uint64
	parent types.Hash
}

func (p *Pipeline) cursorFor(hash types.Hash) (cursor, error) {
	rec, err := p.index.Lookup(hash)
	if err != nil {
		return cursor{}, err
	}
	if rec == nil {
		return cursor{}, chainerrors.New(chainerrors.ErrCodeTrieCorrupted,
			"canonical walk hit unknown block %s", hash.Hex())
	}
	return cursor{hash: hash, number: rec.Header.Number, parent: rec.Header.ParentHash}, nil
}

func (c *cursor) step(p *Pipeline) error {
	next, err := p.cursorFor(c.parent)
	if err != nil {
		return err
	}
	*c = next
	return nil
}

// computeRoute walks the old and new canonical tips back to their common
// ancestor. The new tip is the block being imported; its header is passed
// directly because it is not stored yet.
func (p *Pipeline) computeRoute(oldBest types.Hash, newHash types.Hash, newHeader *types.Header) (*route, error) {
	r := &route{canonical: map[uint64]types.Hash{newHeader.Number: newHash}}

	newSide := cursor{hash: newHash, number: newHeader.Number, parent: newHeader.ParentHash}
	r.enacted = []types.Hash{newHash}

	if oldBest.IsZero() {
		// Fresh chain: everything from genesis up is newly canonical.
		for newSide.number > 0 {
			if err := newSide.step(p); err != nil {
				return nil, err
			}
			r.enacted = append([]types.Hash{newSide.hash}, r.enacted...)
			r.canonical[newSide.number] = newSide.hash
		}
		return r, nil
	}

	oldSide, err := p.cursorFor(oldBest)
	if err != nil {
		return nil, err
	}

	// The chain can shorten when a heavier but shorter fork wins.
	for n := newSide.number + 1; n <= oldSide.number; n++ {
		r.drop = append(r.drop, n)
	}

	for oldSide.number > newSide.number {
		r.retracted = append(r.retracted, oldSide.hash)
		if err := oldSide.step(p); err != nil {
			return nil, err
		}
	}
	for newSide.number > oldSide.number {
		if err := newSide.step(p); err != nil {
			return nil, err
		}
		r.enacted = append([]types.Hash{newSide.hash}, r.enacted...)
		r.canonical[newSide.number] = newSide.hash
	}
	for oldSide.hash != newSide.hash {
		if oldSide.number == 0 || newSide.number == 0 {
			return nil, chainerrors.New(chainerrors.ErrCodeTrieCorrupted,
				"fork walk reached genesis without a common ancestor")
		}
		r.retracted = append(r.retracted, oldSide.hash)
		if err := oldSide.step(p); err != nil {
			return nil, err
		}
		if err := newSide.step(p); err != nil {
			return nil, err
		}
		r.enacted = append([]types.Hash{newSide.hash}, r.enacted...)
		r.canonical[newSide.number] = newSide.hash
	}

	// The common ancestor itself stays canonical; it was prepended one step
	// too far when both sides met.
	if len(r.enacted) > 0 && r.enacted[0] == oldSide.hash {
		delete(r.canonical, newSide.number)
		r.enacted = r.enacted[1:]
	}
	return r, nil
}
