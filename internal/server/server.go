// Package server exposes the catalog client over HTTP for the UI layer.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ranmori/anidb-catalog-client/pkg/catalog"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 25
)

// Searcher resolves a free-text term to ranked candidate identifiers.
type Searcher interface {
	Search(term string, limit int) []int
}

// Fetcher resolves identifiers to catalog records.
type Fetcher interface {
	Fetch(ctx context.Context, id int) (*catalog.Record, error)
	FetchBatch(ctx context.Context, ids []int) []catalog.Result
}

// Server is the HTTP front of the catalog client.
type Server struct {
	router *chi.Mux
	client Fetcher
	titles Searcher
	logger zerolog.Logger
}

// New creates a server over the given client and title index.
func New(client Fetcher, titles Searcher, logger zerolog.Logger) *Server {
	s := &Server{
		client: client,
		titles: titles,
		logger: logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/anime/{id}", s.handleAnime)
		r.Get("/search", s.handleSearch)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleAnime(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid identifier")
		return
	}

	rec, err := s.client.Fetch(r.Context(), id)
	if err != nil {
		s.logger.Warn().Err(err).Int("id", id).Msg("Fetch failed")
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// searchResult is one element of a search response. Status lets the UI
// distinguish shown / not-found / try-again-later per item without the
// whole search failing.
type searchResult struct {
	ID     int             `json:"id"`
	Status string          `json:"status"`
	Record *catalog.Record `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
	}

	ids := s.titles.Search(term, limit)
	batch := s.client.FetchBatch(r.Context(), ids)

	results := make([]searchResult, 0, len(batch))
	for _, res := range batch {
		sr := searchResult{ID: res.ID}
		if res.Err != nil {
			sr.Status = statusLabel(res.Err)
			sr.Error = res.Err.Error()
		} else {
			sr.Status = "ok"
			sr.Record = res.Record
		}
		results = append(results, sr)
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: term, Results: results})
}

// statusForError maps a typed failure to an HTTP status for single-item
// lookups.
func statusForError(err error) int {
	switch kind, _ := catalog.ErrorKind(err); kind {
	case catalog.KindNotFound:
		return http.StatusNotFound
	case catalog.KindBanned:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// statusLabel maps a typed failure to a per-item status string.
func statusLabel(err error) string {
	switch kind, _ := catalog.ErrorKind(err); kind {
	case catalog.KindNotFound:
		return "not_found"
	case catalog.KindBanned:
		return "banned"
	case catalog.KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
