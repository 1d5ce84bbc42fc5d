// Package export serializes conversations to JSON, Markdown, and CSV,
// and re-imports the JSON form.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

type Exporter struct {
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger) *Exporter {
	return &Exporter{ledger: l}
}

// Export renders one conversation in the requested format.
func (e *Exporter) Export(ctx context.Context, id int64, format Format) ([]byte, string, error) {
	conv, err := e.ledger.GetConversation(ctx, id, true)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(conv, "", "  ")
		return out, "application/json", err
	case FormatMarkdown:
		return []byte(markdown(conv)), "text/markdown", nil
	case FormatCSV:
		out, err := asCSV(conv)
		return out, "text/csv", err
	default:
		return nil, "", models.Validationf("unsupported export format %q", format)
	}
}

// ExportBulk renders several conversations into one document. Ids that
// do not resolve are skipped, like a listing filtered on an id set.
// CSV is a single-conversation format and is not offered here.
func (e *Exporter) ExportBulk(ctx context.Context, ids []int64, format Format) ([]byte, string, error) {
	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := e.ledger.GetConversation(ctx, id, true)
		if models.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		convs = append(convs, conv)
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(map[string][]*models.Conversation{"conversations": convs}, "", "  ")
		return out, "application/json", err
	case FormatMarkdown:
		var b strings.Builder
		b.WriteString("# Exported Conversations\n\n")
		for _, conv := range convs {
			title := conv.Title
			if title == "" {
				title = fmt.Sprintf("Conversation %d", conv.ID)
			}
			fmt.Fprintf(&b, "## %s\n\n", title)
			fmt.Fprintf(&b, "**Platform:** %s | **Model:** %s\n\n", conv.Platform, conv.Model)
			for _, m := range conv.Messages {
				fmt.Fprintf(&b, "**%s:** %s\n\n", m.Role, m.Content)
			}
			b.WriteString("---\n\n")
		}
		return []byte(b.String()), "text/markdown", nil
	default:
		return nil, "", models.Validationf("unsupported bulk export format %q", format)
	}
}

// Import creates a conversation from an exported JSON payload. New ids
// and timestamps are assigned; platform, model, title, and the message
// sequence are preserved.
func (e *Exporter) Import(ctx context.Context, payload []byte) (*models.Conversation, error) {
	var conv models.Conversation
	if err := json.Unmarshal(payload, &conv); err != nil {
		return nil, models.Validationf("invalid conversation payload: %v", err)
	}

	messages := make([]ledger.ImportMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, ledger.ImportMessage{
			Role:     m.Role,
			Content:  m.Content,
			Tokens:   m.Tokens,
			Metadata: m.Metadata,
		})
	}
	return e.ledger.ImportConversation(ctx, conv.Platform, conv.Model, conv.Title, nil, messages)
}

// markdown renders a deterministic "role: content" view with a header
// naming platform, model, and title.
func markdown(conv *models.Conversation) string {
	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = fmt.Sprintf("Conversation %d", conv.ID)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Platform:** %s  \n", conv.Platform)
	fmt.Fprintf(&b, "**Model:** %s  \n\n", conv.Model)
	b.WriteString("---\n\n")

	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "**%s:** %s\n\n", m.Role, m.Content)
	}
	return b.String()
}

func asCSV(conv *models.Conversation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"role", "content", "tokens", "created_at"}); err != nil {
		return nil, err
	}
	for _, m := range conv.Messages {
		tokens := ""
		if m.Tokens != nil {
			tokens = strconv.FormatInt(*m.Tokens, 10)
		}
		record := []string{string(m.Role), m.Content, tokens, m.CreatedAt.Format(time.RFC3339)}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
