// Package telemetry publishes process counters through expvar.
package telemetry

import (
	"expvar"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	requests         = expvar.NewMap("api_requests")
	requestLatencyMs = expvar.NewMap("api_request_latency_ms")
	providerAttempts = expvar.NewMap("provider_attempts")
	cacheLookups     = expvar.NewMap("cache_lookups")
)

// Provider outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
	OutcomeEntitled  = "entitlement"
	OutcomeExhausted = "exhausted"
)

// ProviderAttempt counts one step of a fallback chain.
func ProviderAttempt(kind, provider, outcome string) {
	providerAttempts.Add(kind+"."+provider+"."+outcome, 1)
}

// CacheLookup counts a cache gate hit or miss for a key family.
func CacheLookup(family string, hit bool) {
	if hit {
		cacheLookups.Add(family+".hit", 1)
		return
	}
	cacheLookups.Add(family+".miss", 1)
}

// UnmatchedRoute labels requests that no route pattern matched.
const UnmatchedRoute = "unmatched"

// Middleware counts requests by route pattern and status class. The route
// pattern is read after the handler runs, once chi has resolved it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := UnmatchedRoute
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		key := r.Method + " " + route
		requests.Add(key+" "+strconv.Itoa(status/100)+"xx", 1)
		requestLatencyMs.Add(key, time.Since(start).Milliseconds())
	})
}

// Handler serves all published variables as JSON.
func Handler() http.Handler {
	return expvar.Handler()
}
