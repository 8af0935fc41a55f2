// Package api provides the HTTP REST API server for marketd.
//
// It exposes endpoints for stock quotes, global indices, central-bank
// indicators, news, service status, and WebSocket streaming of quote
// updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/altamarfin/marketd/internal/config"
	"github.com/altamarfin/marketd/internal/indicators"
	"github.com/altamarfin/marketd/internal/news"
	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/internal/quote"
)

// IndexAliases maps friendly index names accepted in URLs to Yahoo
// symbols. Clients use the aliases; caret symbols also pass through.
var IndexAliases = map[string]string{
	"sp500":    "^GSPC",
	"dowjones": "^DJI",
	"nasdaq":   "^IXIC",
	"ftse100":  "^FTSE",
	"dax":      "^GDAXI",
	"bovespa":  "^BVSP",
	"ibex35":   "^IBEX",
	"nikkei":   "^N225",
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	stocks     *quote.Service
	indices    *quote.Service
	indicators *indicators.Service
	news       *news.Collector
	wsHub      *WSHub
	log        *zap.Logger
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, stocks, indices *quote.Service, ind *indicators.Service, collector *news.Collector, log *zap.Logger) *Server {
	srv := &Server{
		cfg:        cfg,
		stocks:     stocks,
		indices:    indices,
		indicators: ind,
		news:       collector,
		wsHub:      NewWSHub(log),
		log:        log.With(zap.String("component", "api")),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub so pollers can broadcast quote updates.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server and shuts it down gracefully
// when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/acciones", func(r chi.Router) {
		r.Get("/", s.handleStocks)
		r.Get("/status", s.handleStockStatus)

		r.Route("/indices", func(r chi.Router) {
			r.Get("/", s.handleIndices)
			r.Get("/status", s.handleIndexStatus)
			r.Get("/{symbol}", s.handleIndex)
		})

		r.Get("/{symbol}", s.handleStock)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/indicadores", s.handleIndicators)
		r.Get("/noticias", s.handleNews)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"service": "marketd",
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleStocks resolves a batch of stock symbols. The simbolos query
// parameter is a comma-separated list; absent, the monitored set is
// used. Total provider exhaustion in real-data-only mode answers 503.
func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	syms := splitSymbols(r.URL.Query().Get("simbolos"))
	if len(syms) == 0 {
		syms = s.stocks.Status().Symbols
	}

	res, err := s.stocks.GetQuotes(r.Context(), syms)
	if err != nil {
		if errors.Is(err, provider.ErrAllProvidersExhausted) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	q := s.stocks.GetQuote(r.Context(), symbol)
	if !q.Success {
		writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Data: q, Error: q.Error})
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: q})
}

func (s *Server) handleStockStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.stocks.Status()})
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	syms := splitSymbols(r.URL.Query().Get("simbolos"))
	if len(syms) == 0 {
		syms = s.indices.Status().Symbols
	}
	for i, sym := range syms {
		syms[i] = resolveIndexSymbol(sym)
	}

	res, err := s.indices.GetQuotes(r.Context(), syms)
	if err != nil {
		if errors.Is(err, provider.ErrAllProvidersExhausted) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	q := s.indices.GetQuote(r.Context(), resolveIndexSymbol(symbol))
	if !q.Success {
		writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Data: q, Error: q.Error})
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: q})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.indices.Status()})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.indicators.GetAll(r.Context())})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("categoria")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	articles := s.news.List(category, limit)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"articles": articles,
			"total":    len(articles),
		},
	})
}

// ============================================================
// Helpers
// ============================================================

// resolveIndexSymbol maps a friendly alias to its Yahoo symbol; unknown
// names pass through so caret symbols still work.
func resolveIndexSymbol(name string) string {
	if sym, ok := IndexAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return sym
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// splitSymbols parses a comma-separated symbol list, dropping empties.
func splitSymbols(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
