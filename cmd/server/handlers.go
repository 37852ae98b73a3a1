package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"marketdash/internal/dashboard"
	"marketdash/internal/insight"
	"marketdash/internal/paper"
	"marketdash/internal/provider"
	"marketdash/internal/provider/fallback"
	"marketdash/internal/quiz"
	"marketdash/internal/store"
	"marketdash/internal/telemetry"
)

const maxSymbols = 100

type api struct {
	chain     *fallback.Chain
	dash      *dashboard.Service
	book      *paper.Book
	quiz      *quiz.Tracker
	watchlist *store.Watchlist
	crypto    *store.Watchlist
	log       *slog.Logger
	timeout   time.Duration
	origin    string
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.cors, a.recoverer, limitBody, compress, telemetry.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/debug/vars", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		if a.timeout > 0 {
			r.Use(middleware.Timeout(a.timeout))
		}

		r.Get("/quote/{symbol}", a.getQuote)
		r.Get("/quotes", a.getQuotes)
		r.Get("/history/{symbol}", a.getHistory)
		r.Get("/insider/{symbol}", a.getInsider)
		r.Get("/profile/{symbol}", a.getProfile)
		r.Get("/company-news/{symbol}", a.getCompanyNews)
		r.Get("/fundamentals/{symbol}", a.getFundamentals)
		r.Get("/search", a.getSearch)
		r.Get("/indices", a.getIndices)

		r.Get("/market-overview", a.getMarketOverview)
		r.Get("/market-news", a.getMarketNews)
		r.Get("/geopolitical-news", a.getGeopoliticalNews)
		r.Get("/market-impact", a.getMarketImpact)
		r.Get("/crypto-overview", a.getCryptoOverview)
		r.Get("/market-sentiment", a.getMarketSentiment)
		r.Get("/movers", a.getMovers)
		r.Get("/crypto-news", a.getCryptoNews)

		r.Route("/watchlist/{user}", a.watchlistRoutes(a.watchlist))
		r.Route("/crypto-watchlist/{user}", a.watchlistRoutes(a.crypto))

		r.Route("/paper/{user}", func(r chi.Router) {
			r.Get("/", a.getPaper)
			r.Put("/", a.putPaper)
			r.Post("/positions", a.openPosition)
			r.Delete("/positions/{id}", a.closePosition)
		})

		r.Get("/quizzes", a.getQuizzes)
		r.Get("/quiz/{user}", a.getQuizProgress)
		r.Post("/quiz/{user}/{action}", a.postQuizAction)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func symbolParam(r *http.Request) string {
	return provider.NormalizeSymbol(chi.URLParam(r, "symbol"))
}

func (a *api) getQuote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.chain.Quote(r.Context(), symbolParam(r)))
}

func (a *api) getQuotes(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	if len(symbols) > maxSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols (max 100)")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": a.chain.Quotes(r.Context(), symbols)})
}

func (a *api) getHistory(w http.ResponseWriter, r *http.Request) {
	interval := provider.ParseInterval(r.URL.Query().Get("interval"))
	writeJSON(w, http.StatusOK, a.chain.History(r.Context(), symbolParam(r), interval))
}

func (a *api) getInsider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.chain.Insider(r.Context(), symbolParam(r)))
}

func (a *api) getProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.chain.Profile(r.Context(), symbolParam(r)))
}

func (a *api) getCompanyNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.chain.CompanyNews(r.Context(), symbolParam(r), queryInt(r, "days")))
}

func (a *api) getFundamentals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.chain.Fundamentals(r.Context(), symbolParam(r)))
}

func (a *api) getSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q query param")
		return
	}
	matches := a.chain.Search(r.Context(), q)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(matches), "result": matches})
}

func (a *api) getIndices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.dash.Indices(r.Context()))
}

func (a *api) getMarketOverview(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.MarketOverview(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getMarketNews(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.MarketNews(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getGeopoliticalNews(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.GeopoliticalNews(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getMarketImpact(w http.ResponseWriter, r *http.Request) {
	level := insight.ParseLevel(r.URL.Query().Get("level"))
	out, err := a.dash.MarketImpact(r.Context(), level, r.URL.Query().Get("category"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getCryptoOverview(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.CryptoOverview(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getMarketSentiment(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.MarketSentiment(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getMovers(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.Movers(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getCryptoNews(w http.ResponseWriter, r *http.Request) {
	out, err := a.dash.CryptoNews(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type symbolBody struct {
	Symbol string `json:"symbol"`
}

func (a *api) watchlistRoutes(wl *store.Watchlist) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			items, err := wl.List(r.Context(), chi.URLParam(r, "user"))
			if err != nil {
				a.serverError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var b symbolBody
			if err := decodeBody(r, &b); err != nil || strings.TrimSpace(b.Symbol) == "" {
				writeError(w, http.StatusBadRequest, "body must be {\"symbol\": \"...\"}")
				return
			}
			item, err := wl.Add(r.Context(), chi.URLParam(r, "user"), b.Symbol)
			if err != nil {
				a.serverError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		})
		r.Delete("/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			if err := wl.Remove(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "symbol")); err != nil {
				a.serverError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func (a *api) paperError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, paper.ErrInvalidOrder), errors.Is(err, paper.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, paper.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		a.serverError(w, r, err)
	}
}

func (a *api) getPaper(w http.ResponseWriter, r *http.Request) {
	s, err := a.book.Refresh(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		a.paperError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) putPaper(w http.ResponseWriter, r *http.Request) {
	var l paper.Ledger
	if err := decodeBody(r, &l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s, err := a.book.Replace(r.Context(), chi.URLParam(r, "user"), l)
	if err != nil {
		a.paperError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) openPosition(w http.ResponseWriter, r *http.Request) {
	var o paper.Order
	if err := decodeBody(r, &o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	o.Symbol = provider.NormalizeSymbol(o.Symbol)
	o.Side = paper.Side(strings.ToUpper(string(o.Side)))
	s, err := a.book.Open(r.Context(), chi.URLParam(r, "user"), o)
	if err != nil {
		a.paperError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *api) closePosition(w http.ResponseWriter, r *http.Request) {
	s, err := a.book.Close(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"))
	if err != nil {
		a.paperError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) getQuizzes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.quiz.Catalog())
}

func (a *api) getQuizProgress(w http.ResponseWriter, r *http.Request) {
	p, err := a.quiz.Load(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type quizActionBody struct {
	Value int `json:"value"`
}

func (a *api) postQuizAction(w http.ResponseWriter, r *http.Request) {
	var b quizActionBody
	if err := decodeBody(r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := a.quiz.Apply(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "action"), b.Value)
	switch {
	case errors.Is(err, quiz.ErrUnknownAction), errors.Is(err, quiz.ErrQuizNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quiz.ErrNoQuiz):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		a.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, p)
	}
}
