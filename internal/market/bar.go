package market

import (
	"time"

	"github.com/quantsignals/signalsd/internal/errs"
)

// Bar is a closed OHLCV interval [Timestamp, Timestamp+Timeframe). The
// timestamp is the bucket start, aligned to the timeframe boundary on UTC.
type Bar struct {
	Timestamp        time.Time `json:"timestamp"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	Close            float64   `json:"close"`
	Volume           float64   `json:"volume"`
	OI               float64   `json:"oi,omitempty"`
	TimeframeMinutes int       `json:"timeframe_minutes"`
}

// Validate enforces the bar invariants: low <= open,close <= high,
// non-negative volume, and UTC alignment to the timeframe boundary.
func (b Bar) Validate() error {
	if b.TimeframeMinutes <= 0 {
		return errs.Validation("bar timeframe_minutes must be positive, got %d", b.TimeframeMinutes)
	}
	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close {
		return errs.Validation("bar at %s violates low <= open,close <= high", b.Timestamp)
	}
	if b.Volume < 0 {
		return errs.Validation("bar at %s has negative volume", b.Timestamp)
	}
	step := time.Duration(b.TimeframeMinutes) * time.Minute
	if !b.Timestamp.Equal(b.Timestamp.UTC().Truncate(step)) {
		return errs.Validation("bar timestamp %s not aligned to %dm boundary", b.Timestamp, b.TimeframeMinutes)
	}
	return nil
}

// End returns the exclusive end of the bar's interval.
func (b Bar) End() time.Time {
	return b.Timestamp.Add(time.Duration(b.TimeframeMinutes) * time.Minute)
}

// Closed reports whether the bar's interval has fully elapsed at now.
func (b Bar) Closed(now time.Time) bool {
	return !b.End().After(now)
}
