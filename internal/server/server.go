// Package server exposes the ledger, chat, search, stats, and export
// services over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/export"
	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/search"
	"github.com/chatvault/chatvault/internal/stats"
)

type Server struct {
	ledger   *ledger.Ledger
	chat     *chat.Service
	searcher *search.Searcher
	stats    *stats.Aggregator
	exporter *export.Exporter
	logger   *zap.Logger
	httpSrv  *http.Server
}

func New(addr string, l *ledger.Ledger, c *chat.Service, se *search.Searcher, st *stats.Aggregator, ex *export.Exporter, logger *zap.Logger) *Server {
	s := &Server{
		ledger:   l,
		chat:     c,
		searcher: se,
		stats:    st,
		exporter: ex,
		logger:   logger,
	}
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PUT /api/conversations/{id}", s.handleUpdateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleAppendMessage)
	mux.HandleFunc("GET /api/conversations/{id}/totals", s.handleConversationTotals)
	mux.HandleFunc("POST /api/conversations/compare", s.handleCompareConversations)

	mux.HandleFunc("POST /api/chat/send", s.handleChatSend)
	mux.HandleFunc("GET /api/chat/models", s.handleChatModels)

	mux.HandleFunc("GET /api/folders", s.handleListFolders)
	mux.HandleFunc("POST /api/folders", s.handleCreateFolder)
	mux.HandleFunc("PUT /api/folders/{id}", s.handleUpdateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", s.handleDeleteFolder)

	mux.HandleFunc("GET /api/tags", s.handleListTags)
	mux.HandleFunc("POST /api/tags", s.handleCreateTag)
	mux.HandleFunc("PUT /api/tags/{id}", s.handleUpdateTag)
	mux.HandleFunc("DELETE /api/tags/{id}", s.handleDeleteTag)

	mux.HandleFunc("GET /api/keys", s.handleListAPIKeys)
	mux.HandleFunc("POST /api/keys", s.handleUpsertAPIKey)
	mux.HandleFunc("PUT /api/keys/{id}", s.handleSetAPIKeyActive)
	mux.HandleFunc("DELETE /api/keys/{id}", s.handleDeleteAPIKey)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/export/conversations/{id}", s.handleExport)
	mux.HandleFunc("POST /api/export/bulk", s.handleExportBulk)
	mux.HandleFunc("POST /api/import/conversations", s.handleImport)

	return mux
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses. Storage
// and unknown errors are logged but never echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *models.ValidationError
		nfErr   *models.NotFoundError
		provErr *models.ProviderError
	)
	switch {
	case errors.As(err, &valErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Error()})
	case errors.As(err, &nfErr):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": nfErr.Error()})
	case errors.As(err, &provErr):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":      "provider request failed",
			"request_id": provErr.RequestID,
		})
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Validationf("invalid JSON body: %v", err)
	}
	return nil
}
