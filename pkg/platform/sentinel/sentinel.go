package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, backends and clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: key or record does not exist
// - ErrCorrupt: stored value could not be decoded
// - ErrInvalidState: entity in wrong state for requested operation
//
// For coded, user-facing failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrCorrupt      = errors.New("corrupt value")
	ErrInvalidState = errors.New("invalid state")
)
