// Package moneyness resolves symbolic moneyness cohorts (ATM, OTM-delta
// bands, ...) to concrete option strikes and aggregates Greeks across the
// cohort members.
package moneyness

import (
	"strings"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
)

// Cohort is a symbolic moneyness level.
type Cohort string

const (
	DITM Cohort = "DITM"
	ITM  Cohort = "ITM"
	ATM  Cohort = "ATM"
	OTM  Cohort = "OTM"
	DOTM Cohort = "DOTM"

	// Delta-targeted OTM cohorts. These resolve to OTM candidates first;
	// the final membership is a Greek-level match after pricing.
	OTMDelta5  Cohort = "OTM_DELTA_5"
	OTMDelta10 Cohort = "OTM_DELTA_10"
	OTMDelta25 Cohort = "OTM_DELTA_25"
)

// Band boundaries on the relative strike distance |K-S|/S, and the delta
// tolerance for OTM-delta membership.
const (
	atmBand        = 0.02
	deepBand       = 0.10
	deltaTolerance = 0.02
)

// Cohorts lists every cohort in presentation order.
func Cohorts() []Cohort {
	return []Cohort{DITM, ITM, ATM, OTM, DOTM, OTMDelta5, OTMDelta10, OTMDelta25}
}

// ParseCohort accepts the canonical names plus the OTMΔn shorthand.
func ParseCohort(s string) (Cohort, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "Δ", "_DELTA_")
	norm = strings.ReplaceAll(norm, "-", "_")
	switch Cohort(norm) {
	case DITM, ITM, ATM, OTM, DOTM, OTMDelta5, OTMDelta10, OTMDelta25:
		return Cohort(norm), nil
	}
	return "", errs.Validation("unknown moneyness cohort %q", s)
}

// DeltaTarget returns the |delta| target for the delta cohorts.
func (c Cohort) DeltaTarget() (float64, bool) {
	switch c {
	case OTMDelta5:
		return 0.05, true
	case OTMDelta10:
		return 0.10, true
	case OTMDelta25:
		return 0.25, true
	}
	return 0, false
}

// IsDeltaCohort reports whether membership needs a post-pricing delta match.
func (c Cohort) IsDeltaCohort() bool {
	_, ok := c.DeltaTarget()
	return ok
}

// Classify places one contract in a strike-band cohort. The signed distance
// is positive on the out-of-the-money side of the spot: above it for calls,
// below it for puts.
func Classify(strike, spot float64, ot instrument.OptionType) Cohort {
	d := (strike - spot) / spot
	if ot == instrument.Put {
		d = -d
	}
	switch {
	case d < -deepBand:
		return DITM
	case d < -atmBand:
		return ITM
	case d <= atmBand:
		return ATM
	case d <= deepBand:
		return OTM
	default:
		return DOTM
	}
}

// matches reports whether a contract's band satisfies the cohort. Delta
// cohorts accept anything out of the money; the delta filter runs later.
func (c Cohort) matches(band Cohort) bool {
	if c.IsDeltaCohort() {
		return band == OTM || band == DOTM
	}
	return band == c
}
