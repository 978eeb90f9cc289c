// Package ffeerrors defines the error kinds named in the Fatigue Fusion
// Engine's error handling design and the sentinel values callers use
// with errors.Is to branch on them, the same way every teacher service
// wraps a sentinel with fmt.Errorf("...: %w", err) at each boundary
// instead of inventing a new error type per call site.
package ffeerrors

import "errors"

var (
	// ErrStaleSample: now - timestamp_s exceeded the freshness budget.
	ErrStaleSample = errors.New("stale sample")
	// ErrInvalidSample: a sample violates its declared field ranges.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrInsufficientModalities: no modality present, fusion refuses to emit.
	ErrInsufficientModalities = errors.New("insufficient modalities")
	// ErrIllegalTransition: the requested SystemState edge is not in the graph.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrSubscriberFailure: a state-change subscriber callback failed or timed out.
	ErrSubscriberFailure = errors.New("subscriber failure")
	// ErrStoreUnavailable: the backing bus/store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrShutdownRequested: the evaluation thread was asked to drain and exit.
	ErrShutdownRequested = errors.New("shutdown requested")
)
