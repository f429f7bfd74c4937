package query

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/model"
)

// Origin selects where bin boundaries are anchored.
type Origin int

const (
	// OriginEpoch anchors bins at the Unix epoch, so boundaries do not depend
	// on which rows a query happens to return.
	OriginEpoch Origin = iota

	// OriginFirstPoint anchors bins at the earliest observed instant.
	OriginFirstPoint
)

func (o Origin) String() string {
	switch o {
	case OriginEpoch:
		return "epoch"
	case OriginFirstPoint:
		return "first_point"
	}
	return "unknown"
}

// ParseOrigin accepts "epoch" and "first_point". Empty means epoch.
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "", "epoch":
		return OriginEpoch, nil
	case "first_point", "first":
		return OriginFirstPoint, nil
	}
	return 0, apperr.Errorf(apperr.ErrInvalidArgument, "parse origin", "unknown origin %q", s)
}

// Point is one normalized price sample.
type Point struct {
	Time  time.Time
	Price decimal.Decimal
}

var epoch = time.Unix(0, 0).UTC()

// BinTickers averages points into half-open bins
// [origin + k*binSize, origin + (k+1)*binSize). Empty bins are omitted and
// the result is ascending. points need not be sorted.
func BinTickers(points []Point, binSize time.Duration, origin Origin) ([]model.Bin, error) {
	if binSize <= 0 {
		return nil, apperr.Errorf(apperr.ErrInvalidArgument, "bin tickers", "bin size must be positive, got %s", binSize)
	}
	if len(points) == 0 {
		return []model.Bin{}, nil
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	anchor := epoch
	if origin == OriginFirstPoint {
		anchor = sorted[0].Time
	}

	var (
		out   []model.Bin
		cur   int64
		sum   decimal.Decimal
		count int64
	)
	flush := func() {
		if count == 0 {
			return
		}
		out = append(out, model.Bin{
			Start:    anchor.Add(time.Duration(cur) * binSize).UTC(),
			AvgPrice: sum.Div(decimal.NewFromInt(count)),
		})
	}

	for i, p := range sorted {
		k := binIndex(p.Time, anchor, binSize)
		if i > 0 && k != cur {
			flush()
			sum, count = decimal.Zero, 0
		}
		cur = k
		sum = sum.Add(p.Price)
		count++
	}
	flush()

	return out, nil
}

// binIndex returns floor((t - anchor) / binSize). time.Truncate is not used
// because it anchors at the zero Time rather than at anchor.
func binIndex(t, anchor time.Time, binSize time.Duration) int64 {
	d := t.Sub(anchor)
	k := int64(d / binSize)
	if d < 0 && d%binSize != 0 {
		k--
	}
	return k
}
