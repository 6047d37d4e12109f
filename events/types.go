package events

import (
	"time"

	"chaincore/types"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventBlockImported  EventType = "BlockImported"
	EventBlockFinalized EventType = "BlockFinalized"
)

// ChainEvent represents any event emitted by the client backend
type ChainEvent interface {
	Type() EventType
	Timestamp() time.Time
	BlockHash() types.Hash
}

// ImportNotification is emitted exactly once per successful block import,
// after the commit is durable. Retracted and Enacted describe the canonical
// path delta when the import caused a re-org.
type ImportNotification struct {
	hash      types.Hash
	header    types.Header
	isNewBest bool
	retracted []types.Hash
	enacted   []types.Hash
	timestamp time.Time
}

func NewImportNotification(hash types.Hash, header types.Header, isNewBest bool, retracted, enacted []types.Hash) *ImportNotification {
	return &ImportNotification{
		hash:      hash,
		header:    header,
		isNewBest: isNewBest,
		retracted: retracted,
		enacted:   enacted,
		timestamp: time.Now(),
	}
}

func (e *ImportNotification) Type() EventType {
	return EventBlockImported
}

func (e *ImportNotification) Timestamp() time.Time {
	return e.timestamp
}

func (e *ImportNotification) BlockHash() types.Hash {
	return e.hash
}

func (e *ImportNotification) Header() types.Header {
	return e.header
}

func (e *ImportNotification) IsNewBest() bool {
	return e.isNewBest
}

func (e *ImportNotification) Retracted() []types.Hash {
	return e.retracted
}

func (e *ImportNotification) Enacted() []types.Hash {
	return e.enacted
}

// FinalityNotification is emitted when the finalized pointer advances.
// Finalized lists the newly final canonical segment in ascending order;
// Pruned lists stale fork blocks dropped alongside.
type FinalityNotification struct {
	hash      types.Hash
	header    types.Header
	finalized []types.Hash
	pruned    []types.Hash
	timestamp time.Time
}

func NewFinalityNotification(hash types.Hash, header types.Header, finalized, pruned []types.Hash) *FinalityNotification {
	return &FinalityNotification{
		hash:      hash,
		header:    header,
		finalized: finalized,
		pruned:    pruned,
		timestamp: time.Now(),
	}
}

func (e *FinalityNotification) Type() EventType {
	return EventBlockFinalized
}

func (e *FinalityNotification) Timestamp() time.Time {
	return e.timestamp
}

func (e *FinalityNotification) BlockHash() types.Hash {
	return e.hash
}

func (e *FinalityNotification) Header() types.Header {
	return e.header
}

func (e *FinalityNotification) Finalized() []types.Hash {
	return e.finalized
}

func (e *FinalityNotification) Pruned() []types.Hash {
	return e.pruned
}
