package timeframe

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantsignals/signalsd/internal/cache"
	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/telemetry"
)

// SignalType selects which derived series the manager serves.
type SignalType string

const (
	SignalGreeks          SignalType = "greeks"
	SignalIndicators      SignalType = "indicators"
	SignalMoneynessGreeks SignalType = "moneyness_greeks"
)

func (st SignalType) valid() bool {
	switch st {
	case SignalGreeks, SignalIndicators, SignalMoneynessGreeks:
		return true
	}
	return false
}

// BaseFetcher supplies the 1-minute base series. A 404 upstream yields an
// empty series and nil error; other transport failures are
// ServiceUnavailable.
type BaseFetcher interface {
	FetchBase(ctx context.Context, key instrument.Key, signalType SignalType, from, to time.Time) ([]Point, error)
}

// Manager serves aggregated series for any timeframe up to one day, with a
// tiered TTL cache keyed by request fingerprint.
type Manager struct {
	fetcher BaseFetcher
	cache   cache.Cache
	metrics *telemetry.MetricsRegistry

	mu         sync.Mutex
	customSeen map[string]map[int]bool // instrument|signal -> custom minutes filled
}

// NewManager creates a manager over the given base fetcher and cache.
func NewManager(fetcher BaseFetcher, payloadCache cache.Cache, metrics *telemetry.MetricsRegistry) *Manager {
	return &Manager{
		fetcher:    fetcher,
		cache:      payloadCache,
		metrics:    metrics,
		customSeen: make(map[string]map[int]bool),
	}
}

func seriesFingerprint(key instrument.Key, st SignalType, tf Spec, from, to time.Time, fields []string) string {
	parts := []string{
		key.String(), string(st), tf.String(),
		cache.Timestamp(from), cache.Timestamp(to),
	}
	if len(fields) > 0 {
		sorted := append([]string(nil), fields...)
		sort.Strings(sorted)
		parts = append(parts, strings.Join(sorted, ","))
	}
	return cache.Fingerprint(parts...)
}

// Get returns the aggregated series for [from, to]. Cache lookup happens
// before the upstream fetch, which happens before the cache fill; repeated
// calls with the same fingerprint within TTL return bytewise-equal
// payloads.
func (m *Manager) Get(ctx context.Context, key instrument.Key, st SignalType, tf Spec, from, to time.Time, fields []string) ([]Point, error) {
	if !st.valid() {
		return nil, errs.Validation("unknown signal type %q", st)
	}
	if tf.Minutes < 1 || tf.Minutes > 1440 {
		return nil, errs.Validation("timeframe minutes %d outside [1, 1440]", tf.Minutes)
	}
	if to.Before(from) {
		return nil, errs.Validation("time range end %s before start %s", to, from)
	}

	tier := tf.String()
	fp := "tf:" + seriesFingerprint(key, st, tf, from, to, fields)

	if payload, ok := m.cache.Get(ctx, fp); ok {
		if m.metrics != nil {
			m.metrics.CacheHits.WithLabelValues(tier).Inc()
		}
		var series []Point
		if err := json.Unmarshal(payload, &series); err == nil {
			return series, nil
		}
		log.Warn().Str("fingerprint", fp).Msg("corrupt cached series, refetching")
	}
	if m.metrics != nil {
		m.metrics.CacheMisses.WithLabelValues(tier).Inc()
	}

	base, err := m.fetcher.FetchBase(ctx, key, st, from, to)
	if err != nil {
		return nil, err
	}

	series := Aggregate(base, tf.Minutes, fields, time.Now().UTC())

	if payload, err := json.Marshal(series); err == nil {
		if err := m.cache.Set(ctx, fp, payload, cache.TTLForMinutes(tf.Minutes)); err != nil {
			// Best-effort cache: log and proceed.
			log.Warn().Err(err).Str("fingerprint", fp).Msg("series cache fill failed")
		}
	}

	if tf.Kind == Custom {
		m.rememberCustom(key, st, tf.Minutes)
	}
	return series, nil
}

func (m *Manager) rememberCustom(key instrument.Key, st SignalType, minutes int) {
	id := key.String() + "|" + string(st)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.customSeen[id] == nil {
		m.customSeen[id] = make(map[int]bool)
	}
	m.customSeen[id][minutes] = true
}

// ListTimeframes returns the seven standard tags plus any custom tags this
// process has served for the instrument and signal type, ascending by
// minutes.
func (m *Manager) ListTimeframes(key instrument.Key, st SignalType) []string {
	type entry struct {
		tag     string
		minutes int
	}
	entries := make([]entry, 0, 8)
	for _, tag := range StandardTags() {
		entries = append(entries, entry{tag, standardTags[tag]})
	}

	id := key.String() + "|" + string(st)
	m.mu.Lock()
	for minutes := range m.customSeen[id] {
		entries = append(entries, entry{Spec{Kind: Custom, Minutes: minutes}.String(), minutes})
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].minutes < entries[j].minutes })
	tags := make([]string, len(entries))
	for i, e := range entries {
		tags[i] = e.tag
	}
	return tags
}
