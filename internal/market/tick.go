package market

import (
	"encoding/json"
	"time"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
)

// Tick is one validated market observation. Ticks are read-only after
// construction.
type Tick struct {
	Instrument instrument.Key
	LTP        Price
	Bid        *Price
	Ask        *Price
	Open       *float64
	High       *float64
	Low        *float64
	Close      *float64
	Volume     *int64
	OI         *int64
	ExchangeTS time.Time
	ExchangeTZ *time.Location
}

// TickEnvelope is the inbound JSON shape. Field names follow the upstream
// wire contract.
type TickEnvelope struct {
	IK         string   `json:"ik"`
	AssetClass string   `json:"ac,omitempty"`
	LTP        *Price   `json:"ltp"`
	TSExch     string   `json:"ts_exch"`
	TZ         string   `json:"tz"`
	Bid        *Price   `json:"bid,omitempty"`
	Ask        *Price   `json:"ask,omitempty"`
	O          *float64 `json:"o,omitempty"`
	H          *float64 `json:"h,omitempty"`
	L          *float64 `json:"l,omitempty"`
	C          *float64 `json:"c,omitempty"`
	V          *int64   `json:"v,omitempty"`
	OI         *int64   `json:"oi,omitempty"`
	Chg        *float64 `json:"chg,omitempty"`
	ChgP       *float64 `json:"chgp,omitempty"`
	BC         string   `json:"bc,omitempty"`
	QC         string   `json:"qc,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	BS         string   `json:"bs,omitempty"`
}

// ParseTick decodes and validates one tick envelope. Required fields are
// ik, ltp, ts_exch and tz; tz must be a known IANA zone and ts_exch a valid
// ISO-8601 timestamp.
func ParseTick(raw []byte) (*Tick, error) {
	var env TickEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Wrap(err, errs.KindValidation, "malformed tick envelope")
	}
	return env.Tick()
}

// Tick validates the envelope and builds the internal value.
func (env *TickEnvelope) Tick() (*Tick, error) {
	if env.IK == "" {
		return nil, errs.Validation("tick missing instrument key")
	}
	if env.LTP == nil {
		return nil, errs.Validation("tick %s missing ltp", env.IK)
	}
	if env.TSExch == "" || env.TZ == "" {
		return nil, errs.Validation("tick %s missing ts_exch or tz", env.IK)
	}

	key, err := instrument.Parse(env.IK)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(env.TZ)
	if err != nil {
		return nil, errs.Validation("tick %s: unknown timezone %q", env.IK, env.TZ)
	}

	ts, err := time.Parse(time.RFC3339, env.TSExch)
	if err != nil {
		return nil, errs.Validation("tick %s: bad ts_exch %q", env.IK, env.TSExch)
	}

	return &Tick{
		Instrument: key,
		LTP:        *env.LTP,
		Bid:        env.Bid,
		Ask:        env.Ask,
		Open:       env.O,
		High:       env.H,
		Low:        env.L,
		Close:      env.C,
		Volume:     env.V,
		OI:         env.OI,
		ExchangeTS: ts,
		ExchangeTZ: loc,
	}, nil
}
