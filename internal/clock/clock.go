// Package clock provides the monotonic time source every other
// component consults for staleness decisions, so that a wall-clock jump
// (NTP step, leap second) never flips a freshness verdict.
package clock

import (
	"fmt"
	"time"

	"fatigue-fusion-engine/internal/ffeerrors"
)

// Source returns the current time in fractional seconds from a
// monotonic clock. The default implementation wraps time.Now(), which
// on Go already carries a monotonic reading; tests supply a fake.
type Source interface {
	NowS() float64
}

// Real is the production Source.
type Real struct{}

// realStart anchors Real to the wall clock once; later readings advance
// by the monotonic reading time.Now() carries, not by the wall clock.
var realStart = time.Now()

func (Real) NowS() float64 {
	return float64(realStart.UnixNano())/1e9 + time.Since(realStart).Seconds()
}

// Fake is a test Source whose value is advanced explicitly, so
// freshness tests never depend on wall-clock timing.
type Fake struct {
	t float64
}

func NewFake(startS float64) *Fake {
	return &Fake{t: startS}
}

func (f *Fake) NowS() float64 {
	return f.t
}

// Advance moves the fake clock forward by deltaS seconds.
func (f *Fake) Advance(deltaS float64) {
	f.t += deltaS
}

// Set pins the fake clock to an absolute value.
func (f *Fake) Set(tS float64) {
	f.t = tS
}

// Oracle answers freshness questions against a Source.
type Oracle struct {
	source Source
}

func New(source Source) *Oracle {
	return &Oracle{source: source}
}

// NowS returns the oracle's current time.
func (o *Oracle) NowS() float64 {
	return o.source.NowS()
}

// IsFresh reports whether a sample timestamped ts is still within
// maxAgeS of now.
func (o *Oracle) IsFresh(ts, maxAgeS float64) bool {
	return o.source.NowS()-ts <= maxAgeS
}

// CheckFresh returns ffeerrors.ErrStaleSample, wrapped with the
// observed age, when ts is older than maxAgeS.
func (o *Oracle) CheckFresh(ts, maxAgeS float64) error {
	age := o.source.NowS() - ts
	if age > maxAgeS {
		return fmt.Errorf("sample age %.3fs exceeds max age %.3fs: %w", age, maxAgeS, ffeerrors.ErrStaleSample)
	}
	return nil
}
