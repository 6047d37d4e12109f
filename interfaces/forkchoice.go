package interfaces

import (
	"github.com/holiman/uint256"

	"chaincore/types"
)

// ForkChoice is the consensus collaborator supplying per-block fork-choice
// weight. The backend accumulates weights along parent links and prefers the
// tip with the greatest cumulative weight; it never originates weighting or
// finality decisions itself.
type ForkChoice interface {
	// Weight returns the weight contribution of a single block.
	Weight(header *types.Header) (*uint256.Int, error)
}

// ConstantWeight is a ForkChoice assigning every block the same weight,
// which makes the longest chain the heaviest.
type ConstantWeight struct{}

func (ConstantWeight) Weight(*types.Header) (*uint256.Int, error) {
	return uint256.NewInt(1), nil
}
