package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"marketdash/internal/provider"
)

// call runs one /query request and decodes the JSON object body.
// Alpha Vantage reports throttling and entitlement problems in-band on a 200
// via "Note", "Information" or "Error Message" keys.
func (c *Client) call(ctx context.Context, params map[string]string) (map[string]json.RawMessage, error) {
	if c.query.Get("apikey") == "" {
		return nil, fmt.Errorf("%s: api key not configured: %w", Name, provider.ErrNoData)
	}

	query := maps.Clone(c.query)
	for k, v := range params {
		query.Set(k, v)
	}

	url := fmt.Sprintf("%s/query?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, provider.NewStatusError(Name, res.StatusCode, b)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", Name, err)
	}

	if raw, ok := firstKey(body, "Note", "Information"); ok {
		msg := rawString(raw)
		if strings.Contains(strings.ToLower(msg), "premium") {
			return nil, fmt.Errorf("%s: %s: %w", Name, msg, provider.ErrPaidFeature)
		}
		return nil, fmt.Errorf("%s: %s: %w", Name, msg, provider.ErrRateLimited)
	}
	if raw, ok := body["Error Message"]; ok {
		return nil, fmt.Errorf("%s: %s: %w", Name, rawString(raw), provider.ErrNoData)
	}
	return body, nil
}

func firstKey(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

// parseNumber parses a numeric string field, tolerating a trailing percent sign.
func parseNumber(fields map[string]string, key string) (float64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return f, nil
}
