package timestamp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinbase-data/internal/apperr"
)

func TestNormalize_Valid(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"iso zulu", "2024-01-01T00:00:00Z", midnight},
		{"iso offset", "2024-01-01T02:00:00+02:00", midnight},
		{"iso no zone", "2024-01-01T00:00:00", midnight},
		{"iso nanos", "2023-02-09T20:32:50.714964855Z", time.Date(2023, 2, 9, 20, 32, 50, 714964855, time.UTC)},
		{"iso millis", "2019-08-14T20:42:27.265Z", time.Date(2019, 8, 14, 20, 42, 27, 265000000, time.UTC)},
		{"space separated", "2024-01-01 00:00:00", midnight},
		{"postgres short offset", "2024-01-01 00:00:00+00", midnight},
		{"rfc1123 gmt", "Mon, 01 Jan 2024 00:00:00 GMT", midnight},
		{"surrounding whitespace", "  2024-01-01T00:00:00Z ", midnight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "Normalize(%q) = %v, want %v", tt.raw, got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"yesterday",
		"1704067200",
		"2024/01/01 00:00:00",
		"2024-13-01T00:00:00Z",
		"2024-01-01Tnoon",
		"Funday, 99 Jan 2024 00:00:00 GMT",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrParse))
		})
	}
}

func TestNormalize_EquivalentShapes(t *testing.T) {
	iso, err := Normalize("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	gmt, err := Normalize("Mon, 01 Jan 2024 00:00:00 GMT")
	require.NoError(t, err)

	assert.Equal(t, iso, gmt)
}
