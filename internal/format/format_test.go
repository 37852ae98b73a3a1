package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		9.5:      "$9.50",
		0:        "$0.00",
		1234.567: "$1,234.57",
		-12.3:    "-$12.30",
	}
	for in, want := range tests {
		require.Equal(t, want, Price(in), "price %v", in)
	}
}

func TestNumber(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		1_500_000:     "1.50M",
		2_346_000_000: "2.35B",
		1000:          "1.00K",
		999.999:       "1000.00",
		-2_000_000:    "-2000000.00",
	}
	for in, want := range tests {
		require.Equal(t, want, Number(in), "number %v", in)
	}
}

func TestPercentage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "-3.46%", Percentage(-3.456))
	require.Equal(t, "+0.00%", Percentage(0))
	require.Equal(t, "+12.30%", Percentage(12.3))
}

func TestDateRange(t *testing.T) {
	t.Parallel()

	from, to := DateRange(30, time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC))
	require.Equal(t, "2024-02-14", from)
	require.Equal(t, "2024-03-15", to)
}
