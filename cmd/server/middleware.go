package main

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const maxRequestBody = 1 << 20

// cors marks every response as JSON, allows the configured origin and
// answers preflight requests before routing.
func (a *api) cors(next http.Handler) http.Handler {
	origin := a.origin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "application/json; charset=utf-8")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// recoverer turns a handler panic into a logged 500 with a JSON body.
func (a *api) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.log.Error("handler panic",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("panic", rec),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// limitBody bounds the bodies of writes (paper ledgers, orders, quiz actions).
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut:
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
			}
		}
		next.ServeHTTP(w, r)
	})
}

var gzipWriters = sync.Pool{New: func() any {
	zw, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
	return zw
}}

// compress gzips response bodies for clients that accept it. The status line
// is held back until the first body write so that bodiless responses (204,
// 304, or a handler that writes nothing) go out without Content-Encoding.
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Accept-Encoding")
		gw := &gzipWriter{ResponseWriter: w}
		defer gw.finish()
		next.ServeHTTP(gw, r)
	})
}

type gzipWriter struct {
	http.ResponseWriter

	status  int
	sent    bool
	plain   bool
	encoder *gzip.Writer
}

func (g *gzipWriter) WriteHeader(code int) {
	if g.status != 0 {
		return
	}
	g.status = code
	if code == http.StatusNoContent || code == http.StatusNotModified || code < http.StatusOK {
		g.plain = true
		g.sendHeader()
	}
}

func (g *gzipWriter) sendHeader() {
	if g.sent {
		return
	}
	g.sent = true
	g.ResponseWriter.WriteHeader(g.status)
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	if g.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
	if g.plain {
		return g.ResponseWriter.Write(b)
	}
	if g.encoder == nil {
		if len(b) == 0 {
			return 0, nil
		}
		h := g.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		g.sendHeader()
		g.encoder = gzipWriters.Get().(*gzip.Writer)
		g.encoder.Reset(g.ResponseWriter)
	}
	return g.encoder.Write(b)
}

// finish flushes the gzip trailer, or sends a held-back status with no body.
func (g *gzipWriter) finish() {
	if g.encoder == nil {
		if g.status != 0 {
			g.sendHeader()
		}
		return
	}
	_ = g.encoder.Close()
	g.encoder.Reset(io.Discard)
	gzipWriters.Put(g.encoder)
	g.encoder = nil
}
