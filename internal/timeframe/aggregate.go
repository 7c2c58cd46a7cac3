package timeframe

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Point is one observation in a signal series: a timestamp plus named
// numeric fields.
type Point struct {
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// reducer kinds per field name. Unlisted numeric fields reduce by mean.
const (
	reduceMean = iota
	reduceMax
	reduceMin
	reduceSum
	reduceFirst
	reduceLast
)

var fieldReducers = map[string]int{
	"price": reduceMean,
	"delta": reduceMean,
	"gamma": reduceMean,
	"theta": reduceMean,
	"vega":  reduceMean,
	"rho":   reduceMean,

	"high": reduceMax,
	"ask":  reduceMax,

	"low": reduceMin,
	"bid": reduceMin,

	"volume": reduceSum,
	"trades": reduceSum,

	"open":  reduceFirst,
	"close": reduceLast,
}

func reduce(kind int, values []float64) float64 {
	switch kind {
	case reduceMax:
		return floats.Max(values)
	case reduceMin:
		return floats.Min(values)
	case reduceSum:
		return floats.Sum(values)
	case reduceFirst:
		return values[0]
	case reduceLast:
		return values[len(values)-1]
	default:
		return stat.Mean(values, nil)
	}
}

// Aggregate resamples a base series into minutes-wide, left-closed UTC
// buckets. The optional fields filter restricts which numeric fields are
// aggregated. Buckets whose end is after now are excluded: they are not
// yet closed.
func Aggregate(points []Point, minutes int, fields []string, now time.Time) []Point {
	if len(points) == 0 || minutes <= 0 {
		return []Point{}
	}

	step := time.Duration(minutes) * time.Minute

	var wanted map[string]bool
	if len(fields) > 0 {
		wanted = make(map[string]bool, len(fields))
		for _, f := range fields {
			wanted[f] = true
		}
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Group values per bucket per field, preserving observation order so
	// first/last reducers are strictly ordered.
	type bucketAcc map[string][]float64
	buckets := make(map[time.Time]bucketAcc)
	var order []time.Time

	for _, p := range sorted {
		start := p.Timestamp.UTC().Truncate(step)
		acc, ok := buckets[start]
		if !ok {
			acc = make(bucketAcc)
			buckets[start] = acc
			order = append(order, start)
		}
		for name, v := range p.Fields {
			if wanted != nil && !wanted[name] {
				continue
			}
			acc[name] = append(acc[name], v)
		}
	}

	out := make([]Point, 0, len(order))
	for _, start := range order {
		if start.Add(step).After(now) {
			continue // bucket not yet closed
		}
		acc := buckets[start]
		fieldsOut := make(map[string]float64, len(acc))
		for name, values := range acc {
			fieldsOut[name] = reduce(fieldReducers[name], values)
		}
		out = append(out, Point{Timestamp: start, Fields: fieldsOut})
	}
	return out
}
