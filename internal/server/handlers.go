package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/export"
	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Validationf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.ListFilter{
		Platform: models.Platform(q.Get("platform")),
		Model:    q.Get("model"),
		Search:   q.Get("search"),
		Page:     queryInt(r, "page"),
		PerPage:  queryInt(r, "per_page"),
	}
	if raw := q.Get("folder_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, models.Validationf("invalid folder_id %q", raw))
			return
		}
		f.FolderID = &id
	}

	convs, err := s.ledger.ListConversations(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform models.Platform `json:"platform"`
		Model    string          `json:"model"`
		Title    string          `json:"title"`
		FolderID *int64          `json:"folder_id"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	conv, err := s.ledger.CreateConversation(r.Context(), req.Platform, req.Model, req.Title, req.FolderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.ledger.GetConversation(r.Context(), id, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Raw map so an explicit "folder_id": null clears the folder while
	// an absent key leaves it alone.
	var raw map[string]json.RawMessage
	if err := s.decode(r, &raw); err != nil {
		s.writeError(w, r, err)
		return
	}

	var p ledger.UpdateConversationParams
	if v, ok := raw["title"]; ok {
		var title string
		if err := json.Unmarshal(v, &title); err != nil {
			s.writeError(w, r, models.Validationf("invalid title"))
			return
		}
		p.Title = &title
	}
	if v, ok := raw["folder_id"]; ok {
		p.SetFolder = true
		if string(v) != "null" {
			var fid int64
			if err := json.Unmarshal(v, &fid); err != nil {
				s.writeError(w, r, models.Validationf("invalid folder_id"))
				return
			}
			p.FolderID = &fid
		}
	}
	if v, ok := raw["tags"]; ok {
		tags := []int64{}
		if err := json.Unmarshal(v, &tags); err != nil {
			s.writeError(w, r, models.Validationf("invalid tags"))
			return
		}
		p.TagIDs = tags
	}

	conv, err := s.ledger.UpdateConversation(r.Context(), id, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteConversation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Role     models.Role    `json:"role"`
		Content  string         `json:"content"`
		Tokens   *int64         `json:"tokens"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.ledger.AppendMessage(r.Context(), id, req.Role, req.Content, req.Metadata, req.Tokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleConversationTotals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	totals, err := s.ledger.ConversationTotals(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleCompareConversations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationIDs []int64 `json:"conversation_ids"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	convs, err := s.ledger.CompareConversations(r.Context(), req.ConversationIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID *int64          `json:"conversation_id"`
		Platform       models.Platform `json:"platform"`
		Model          string          `json:"model"`
		Message        string          `json:"message"`
		FolderID       *int64          `json:"folder_id"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.chat.Send(r.Context(), chat.SendRequest{
		ConversationID: req.ConversationID,
		Platform:       req.Platform,
		Model:          req.Model,
		Message:        req.Message,
		FolderID:       req.FolderID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chat.Models())
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.ledger.ListFolders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Color    string `json:"color"`
		ParentID *int64 `json:"parent_id"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	folder, err := s.ledger.CreateFolder(r.Context(), req.Name, req.Color, req.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var raw map[string]json.RawMessage
	if err := s.decode(r, &raw); err != nil {
		s.writeError(w, r, err)
		return
	}

	var p ledger.UpdateFolderParams
	if v, ok := raw["name"]; ok {
		var name string
		if err := json.Unmarshal(v, &name); err != nil {
			s.writeError(w, r, models.Validationf("invalid name"))
			return
		}
		p.Name = &name
	}
	if v, ok := raw["color"]; ok {
		var color string
		if err := json.Unmarshal(v, &color); err != nil {
			s.writeError(w, r, models.Validationf("invalid color"))
			return
		}
		p.Color = &color
	}
	if v, ok := raw["parent_id"]; ok {
		p.SetParent = true
		if string(v) != "null" {
			var pid int64
			if err := json.Unmarshal(v, &pid); err != nil {
				s.writeError(w, r, models.Validationf("invalid parent_id"))
				return
			}
			p.ParentID = &pid
		}
	}

	folder, err := s.ledger.UpdateFolder(r.Context(), id, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, folder)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteFolder(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.ledger.ListTags(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tag, err := s.ledger.CreateTag(r.Context(), req.Name, req.Color)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tag, err := s.ledger.UpdateTag(r.Context(), id, ledger.UpdateTagParams{Name: req.Name, Color: req.Color})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTag(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.ledger.ListAPIKeys(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (s *Server) handleUpsertAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform models.Platform `json:"platform"`
		Secret   string          `json:"secret"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := s.ledger.UpsertAPIKey(r.Context(), req.Platform, req.Secret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleSetAPIKeyActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.ledger.SetAPIKeyActive(r.Context(), id, req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteAPIKey(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.searcher.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.Report(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatJSON
	}

	body, contentType, err := s.exporter.Export(r.Context(), id, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleExportBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationIDs []int64       `json:"conversation_ids"`
		Format          export.Format `json:"format"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Format == "" {
		req.Format = export.FormatJSON
	}

	body, contentType, err := s.exporter.ExportBulk(r.Context(), req.ConversationIDs, req.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, models.Validationf("failed to read body: %v", err))
		return
	}

	conv, err := s.exporter.Import(r.Context(), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}
