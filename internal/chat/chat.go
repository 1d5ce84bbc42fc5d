// Package chat drives the send flow: persist the user turn, call the
// platform provider, persist the assistant turn with usage figures.
package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/provider"
)

const maxTitleLen = 100

type Service struct {
	ledger   *ledger.Ledger
	registry *provider.Registry
	logger   *zap.Logger
}

func New(l *ledger.Ledger, registry *provider.Registry, logger *zap.Logger) *Service {
	return &Service{ledger: l, registry: registry, logger: logger}
}

type SendRequest struct {
	ConversationID *int64
	Platform       models.Platform
	Model          string
	Message        string
	FolderID       *int64
}

type SendResult struct {
	ConversationID int64           `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}

// Send appends the user message, invokes the provider, and appends the
// assistant reply. When the provider fails the conversation and the
// user message stay persisted; the returned ProviderError carries the
// conversation id so the caller can retry just the assistant turn.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Message == "" {
		return nil, models.Validationf("message is required")
	}
	if !req.Platform.Valid() {
		return nil, models.Validationf("unknown platform %q", req.Platform)
	}
	if req.Model == "" {
		return nil, models.Validationf("model is required")
	}

	prov, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}
	key, err := s.ledger.ActiveAPIKey(ctx, req.Platform)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.Validationf("API key not configured for %s", req.Platform)
		}
		return nil, err
	}

	var conv *models.Conversation
	if req.ConversationID != nil {
		conv, err = s.ledger.GetConversation(ctx, *req.ConversationID, false)
	} else {
		conv, err = s.ledger.CreateConversation(ctx, req.Platform, req.Model,
			truncate(req.Message, maxTitleLen), req.FolderID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.AppendMessage(ctx, conv.ID, models.RoleUser, req.Message, nil, nil); err != nil {
		return nil, err
	}

	full, err := s.ledger.GetConversation(ctx, conv.ID, true)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	reply, err := prov.Send(ctx, key.Secret, req.Model, full.Messages)
	if err != nil {
		s.logger.Error("Provider call failed",
			zap.Error(err),
			zap.String("platform", string(req.Platform)),
			zap.String("request_id", requestID),
			zap.Int64("conversation_id", conv.ID))
		return nil, &models.ProviderError{
			Platform:       req.Platform,
			ConversationID: conv.ID,
			RequestID:      requestID,
			Err:            err,
		}
	}

	meta := make(map[string]any, len(reply.Metadata)+1)
	for k, v := range reply.Metadata {
		meta[k] = v
	}
	meta["request_id"] = requestID

	assistant, err := s.ledger.AppendMessage(ctx, conv.ID,
		models.RoleAssistant, reply.Content, meta, &reply.Tokens)
	if err != nil {
		return nil, err
	}

	return &SendResult{ConversationID: conv.ID, Message: assistant}, nil
}

// Models lists the model catalog per platform.
func (s *Service) Models() map[models.Platform][]string {
	return s.registry.Models()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
