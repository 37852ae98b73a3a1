package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/internal/provider"
)

func TestGetJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		require.Equal(t, "abc", r.Header.Get("X-Key"))
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"price": 12.5}`))
		case "/forbidden":
			http.Error(w, "premium only", http.StatusForbidden)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	t.Cleanup(srv.Close)

	c := New(2 * time.Second)
	c.Headers = map[string]string{"X-Key": "abc"}

	var out struct {
		Price float64 `json:"price"`
	}
	require.NoError(t, c.GetJSON(t.Context(), "test", srv.URL+"/ok", nil, &out))
	require.InDelta(t, 12.5, out.Price, 1e-9)

	err := c.GetJSON(t.Context(), "test", srv.URL+"/forbidden", nil, &out)
	require.ErrorIs(t, err, provider.ErrPaidFeature)

	err = c.GetJSON(t.Context(), "test", srv.URL+"/garbage", nil, &out)
	require.Error(t, err)
	require.NotErrorIs(t, err, provider.ErrPaidFeature)
}
