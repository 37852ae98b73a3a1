package alphavantage

import (
	"net/http"
	"net/url"
)

const (
	// Name identifies the provider in quotes, logs and metrics.
	Name = "alphavantage"

	baseURL = "https://www.alphavantage.co"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Alpha Vantage API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
	// seriesLimit caps the number of daily points kept from a time series.
	seriesLimit int
}

// Option is a configuration option for the Alpha Vantage client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithSeriesLimit caps how many trailing daily points History keeps.
func WithSeriesLimit(n int) Option {
	return func(c *Client) {
		c.seriesLimit = n
	}
}

// New creates a new Alpha Vantage client.
func New(key string, options ...Option) *Client {
	var client = &Client{
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
		header:      http.Header{},
		query:       url.Values{},
		seriesLimit: 120,
	}
	if key != "" {
		// https://www.alphavantage.co/documentation/
		client.query.Add("apikey", key)
	}
	for _, option := range options {
		option(client)
	}
	return client
}

func (c *Client) Name() string { return Name }
