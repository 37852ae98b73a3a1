package finnhub_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"marketdash/internal/provider"
)

func TestBasicFinancials(t *testing.T) {
	t.Parallel()

	// Arrange
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock/metric", r.URL.Path)
		require.Equal(t, "all", r.URL.Query().Get("metric"))
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"metric":{"52WeekHigh":237.23,"52WeekLow":164.08,"52WeekHighDate":"2024-07-16","beta":1.24,"peBasicExclExtraTTM":35.1,"roeTTM":160.58,"dividendYieldIndicatedAnnual":null},"metricType":"all","symbol":"AAPL"}`))
	})

	// Act
	m, err := client.BasicFinancials(t.Context(), "aapl")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m.WeekHigh52)
	require.InDelta(t, 237.23, *m.WeekHigh52, 1e-9)
	require.InDelta(t, 1.24, *m.Beta, 1e-9)
	require.Nil(t, m.DividendYield)
	require.Nil(t, m.EPS)
}

func TestBasicFinancials_EmptyIsNoData(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metric":{},"series":{},"symbol":"ZZZZ"}`))
	})

	_, err := client.BasicFinancials(t.Context(), "ZZZZ")
	require.ErrorIs(t, err, provider.ErrNoData)
}

func TestRecommendationsAndEarnings(t *testing.T) {
	t.Parallel()

	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/recommendation":
			_, _ = w.Write([]byte(`[{"buy":24,"hold":7,"period":"2024-06-01","sell":0,"strongBuy":13,"strongSell":0,"symbol":"NVDA"},{"buy":22,"hold":8,"period":"2024-05-01","sell":1,"strongBuy":12,"strongSell":0,"symbol":"NVDA"}]`))
		case "/stock/earnings":
			_, _ = w.Write([]byte(`[{"actual":0.6,"estimate":0.55,"period":"2024-03-31","surprise":0.05,"surprisePercent":9.09,"symbol":"NVDA"},{"actual":null,"estimate":0.5,"period":"2023-12-31","surprise":null,"surprisePercent":null,"symbol":"NVDA"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	recs, err := client.Recommendations(t.Context(), "nvda")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "2024-06-01", recs[0].Period)
	require.Equal(t, 44, recs[0].Analysts())

	earnings, err := client.Earnings(t.Context(), "nvda")
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	require.InDelta(t, 0.05, *earnings[0].Surprise, 1e-9)
	require.Nil(t, earnings[1].Actual)
}

func TestPriceTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
	}{
		{name: "covered", status: http.StatusOK, body: `{"lastUpdated":"2024-06-01 00:00:00","symbol":"MSFT","targetHigh":600,"targetLow":400,"targetMean":500,"targetMedian":505}`},
		{name: "uncovered", status: http.StatusOK, body: `{"symbol":"ZZZZ","targetHigh":0,"targetLow":0,"targetMean":0,"targetMedian":0}`, wantErr: func(err error) bool { return errors.Is(err, provider.ErrNoData) }},
		{name: "premium", status: http.StatusForbidden, body: `{"error":"You don't have access to this resource."}`, wantErr: provider.IsEntitlement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/stock/price-target", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			pt, err := client.PriceTarget(t.Context(), "msft")
			if tt.wantErr != nil {
				require.Error(t, err)
				require.True(t, tt.wantErr(err))
				return
			}
			require.NoError(t, err)
			require.InDelta(t, 505, pt.TargetMedian, 1e-9)
			require.Equal(t, "2024-06-01 00:00:00", pt.LastUpdated)
		})
	}
}
