package query

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinbase-data/internal/apperr"
)

var base = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC) // a multiple of 10s since epoch

func pt(offset time.Duration, price string) Point {
	return Point{Time: base.Add(offset), Price: decimal.RequireFromString(price)}
}

func TestBinTickers_TwoPointsOneBin(t *testing.T) {
	bins, err := BinTickers([]Point{pt(0, "10"), pt(5*time.Second, "20")}, 10*time.Second, OriginEpoch)
	require.NoError(t, err)
	require.Len(t, bins, 1)

	assert.True(t, bins[0].Start.Equal(base))
	assert.True(t, bins[0].AvgPrice.Equal(decimal.NewFromInt(15)), "avg = %s", bins[0].AvgPrice)
}

func TestBinTickers_SinglePoint(t *testing.T) {
	bins, err := BinTickers([]Point{pt(3*time.Second, "42000.5")}, time.Second, OriginEpoch)
	require.NoError(t, err)
	require.Len(t, bins, 1)
	assert.True(t, bins[0].AvgPrice.Equal(decimal.RequireFromString("42000.5")))
	assert.True(t, bins[0].Start.Equal(base.Add(3*time.Second)))
}

func TestBinTickers_Empty(t *testing.T) {
	bins, err := BinTickers(nil, time.Second, OriginEpoch)
	require.NoError(t, err)
	assert.NotNil(t, bins)
	assert.Empty(t, bins)
}

func TestBinTickers_InvalidBinSize(t *testing.T) {
	for _, size := range []time.Duration{0, -time.Second} {
		_, err := BinTickers([]Point{pt(0, "1")}, size, OriginEpoch)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, "size %s", size)
	}
}

func TestBinTickers_HalfOpenAndGapsOmitted(t *testing.T) {
	points := []Point{
		pt(0, "1"),
		pt(9999*time.Millisecond, "3"), // still in [0, 10s)
		pt(10*time.Second, "5"),         // boundary opens the next bin
		pt(35*time.Second, "7"),         // bins [20s, 30s) are empty
	}
	bins, err := BinTickers(points, 10*time.Second, OriginEpoch)
	require.NoError(t, err)
	require.Len(t, bins, 3)

	assert.True(t, bins[0].Start.Equal(base))
	assert.True(t, bins[0].AvgPrice.Equal(decimal.NewFromInt(2)))
	assert.True(t, bins[1].Start.Equal(base.Add(10*time.Second)))
	assert.True(t, bins[1].AvgPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, bins[2].Start.Equal(base.Add(30*time.Second)))
	assert.True(t, bins[2].AvgPrice.Equal(decimal.NewFromInt(7)))
}

func TestBinTickers_UnsortedInput(t *testing.T) {
	points := []Point{pt(25*time.Second, "9"), pt(1*time.Second, "1"), pt(12*time.Second, "4")}
	bins, err := BinTickers(points, 10*time.Second, OriginEpoch)
	require.NoError(t, err)
	require.Len(t, bins, 3)
	for i := 1; i < len(bins); i++ {
		assert.True(t, bins[i-1].Start.Before(bins[i].Start), "bins not ascending")
	}
}

func TestBinTickers_OriginFirstPoint(t *testing.T) {
	// Epoch bins would split these; anchoring at the first point keeps them together.
	points := []Point{pt(7*time.Second, "10"), pt(12*time.Second, "20")}

	epochBins, err := BinTickers(points, 10*time.Second, OriginEpoch)
	require.NoError(t, err)
	assert.Len(t, epochBins, 2)

	firstBins, err := BinTickers(points, 10*time.Second, OriginFirstPoint)
	require.NoError(t, err)
	require.Len(t, firstBins, 1)
	assert.True(t, firstBins[0].Start.Equal(base.Add(7*time.Second)))
	assert.True(t, firstBins[0].AvgPrice.Equal(decimal.NewFromInt(15)))
}

func TestBinTickers_BeforeEpoch(t *testing.T) {
	p := Point{Time: time.Unix(-5, 0).UTC(), Price: decimal.NewFromInt(1)}
	bins, err := BinTickers([]Point{p}, 10*time.Second, OriginEpoch)
	require.NoError(t, err)
	require.Len(t, bins, 1)
	assert.True(t, bins[0].Start.Equal(time.Unix(-10, 0)))
}

func TestBinIndex(t *testing.T) {
	tests := []struct {
		offset time.Duration
		want   int64
	}{
		{0, 0},
		{9 * time.Second, 0},
		{10 * time.Second, 1},
		{-1 * time.Second, -1},
		{-10 * time.Second, -1},
		{-11 * time.Second, -2},
	}
	for _, tt := range tests {
		got := binIndex(epoch.Add(tt.offset), epoch, 10*time.Second)
		assert.Equal(t, tt.want, got, "offset %s", tt.offset)
	}
}

func TestParseOrigin(t *testing.T) {
	o, err := ParseOrigin("")
	require.NoError(t, err)
	assert.Equal(t, OriginEpoch, o)

	o, err = ParseOrigin("first_point")
	require.NoError(t, err)
	assert.Equal(t, OriginFirstPoint, o)

	_, err = ParseOrigin("middle")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
