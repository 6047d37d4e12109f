package types

// BlockStatus tracks where a block is in its lifecycle. Transitions move
// forward only, with a single exception: a canonical block retracted by a
// re-org steps back to StatusValid. Finalized and Pruned are terminal.
type BlockStatus uint8

const (
	StatusUnknown BlockStatus = iota
	StatusQueued
	StatusValid
	StatusCanonical
	StatusFinalized
	StatusPruned
)

func (s BlockStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusQueued:
		return "queued"
	case StatusValid:
		return "valid"
	case StatusCanonical:
		return "canonical"
	case StatusFinalized:
		return "finalized"
	case StatusPruned:
		return "pruned"
	default:
		return "invalid"
	}
}

// CanTransitionTo reports whether a status change is legal.
func (s BlockStatus) CanTransitionTo(next BlockStatus) bool {
	if next == s {
		return false
	}
	switch s {
	case StatusFinalized:
		// Finality is irreversible.
		return false
	case StatusPruned:
		return false
	case StatusCanonical:
		// Retraction by re-org, finalization, or pruning of a stale fork tip.
		return next == StatusValid || next == StatusFinalized || next == StatusPruned
	default:
		return next > s
	}
}
