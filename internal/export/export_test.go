package export

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/storage"
)

type noFinder struct{}

func (noFinder) ConversationIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	return nil, nil
}

func i64(v int64) *int64 { return &v }

func newTestExporter(t *testing.T) (*Exporter, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(storage.NewMemoryStorage(), noFinder{}, zap.NewNop())
	return New(l), l
}

func seedConversation(t *testing.T, l *ledger.Ledger) *models.Conversation {
	t.Helper()
	conv, err := l.ImportConversation(context.Background(), models.PlatformOpenAI, "gpt-4", "Greetings", nil, []ledger.ImportMessage{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there", Tokens: i64(42)},
	})
	require.NoError(t, err)
	return conv
}

func TestExportJSONRoundTrip(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	conv := seedConversation(t, l)

	payload, contentType, err := e.Export(ctx, conv.ID, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	imported, err := e.Import(ctx, payload)
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, imported.ID)
	assert.Equal(t, conv.Platform, imported.Platform)
	assert.Equal(t, conv.Model, imported.Model)
	assert.Equal(t, conv.Title, imported.Title)
	require.Len(t, imported.Messages, 2)
	assert.Equal(t, "hello", imported.Messages[0].Content)

	// Costs come from the pricing table, not the payload.
	require.NotNil(t, imported.Messages[1].Cost)
	assert.True(t, imported.Messages[1].Priced)
	assert.Greater(t, *imported.Messages[1].Cost, 0.0)
}

func TestExportJSONOmitsSecrets(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	conv := seedConversation(t, l)
	_, err := l.UpsertAPIKey(ctx, models.PlatformOpenAI, "sk-very-secret")
	require.NoError(t, err)

	payload, _, err := e.Export(ctx, conv.ID, FormatJSON)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "sk-very-secret")
}

func TestExportMarkdown(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	conv := seedConversation(t, l)

	payload, contentType, err := e.Export(ctx, conv.ID, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", contentType)

	md := string(payload)
	assert.True(t, strings.HasPrefix(md, "# Greetings\n"))
	assert.Contains(t, md, "**Platform:** openai")
	assert.Contains(t, md, "**Model:** gpt-4")
	assert.Contains(t, md, "**user:** hello")
	assert.Contains(t, md, "**assistant:** hi there")

	// Same input, same output.
	again, _, err := e.Export(ctx, conv.ID, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, payload, again)
}

func TestExportCSV(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	conv := seedConversation(t, l)

	payload, contentType, err := e.Export(ctx, conv.ID, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "role,content,tokens,created_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "user,hello,,"))
	assert.True(t, strings.HasPrefix(lines[2], "assistant,hi there,42,"))
}

func TestExportBulkJSON(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	first := seedConversation(t, l)
	second := seedConversation(t, l)

	// A stale id in the set is skipped, not fatal.
	payload, contentType, err := e.ExportBulk(ctx, []int64{first.ID, 999, second.ID}, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var parsed struct {
		Conversations []*models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(payload, &parsed))
	require.Len(t, parsed.Conversations, 2)
	assert.Equal(t, first.ID, parsed.Conversations[0].ID)
	assert.Equal(t, second.ID, parsed.Conversations[1].ID)
	require.Len(t, parsed.Conversations[0].Messages, 2)
}

func TestExportBulkMarkdown(t *testing.T) {
	e, l := newTestExporter(t)
	ctx := context.Background()
	conv := seedConversation(t, l)

	payload, contentType, err := e.ExportBulk(ctx, []int64{conv.ID}, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", contentType)

	md := string(payload)
	assert.True(t, strings.HasPrefix(md, "# Exported Conversations\n"))
	assert.Contains(t, md, "## Greetings")
	assert.Contains(t, md, "**Platform:** openai | **Model:** gpt-4")
	assert.Contains(t, md, "**user:** hello")
}

func TestExportBulkRejectsCSV(t *testing.T) {
	e, l := newTestExporter(t)
	conv := seedConversation(t, l)

	_, _, err := e.ExportBulk(context.Background(), []int64{conv.ID}, FormatCSV)
	assert.True(t, models.IsValidation(err))
}

func TestExportUnknownFormat(t *testing.T) {
	e, l := newTestExporter(t)
	conv := seedConversation(t, l)

	_, _, err := e.Export(context.Background(), conv.ID, Format("xml"))
	assert.True(t, models.IsValidation(err))
}

func TestExportMissingConversation(t *testing.T) {
	e, _ := newTestExporter(t)
	_, _, err := e.Export(context.Background(), 999, FormatJSON)
	assert.True(t, models.IsNotFound(err))
}

func TestImportRejectsBadPayload(t *testing.T) {
	e, _ := newTestExporter(t)
	ctx := context.Background()

	_, err := e.Import(ctx, []byte("{not json"))
	assert.True(t, models.IsValidation(err))

	bad, err2 := json.Marshal(models.Conversation{Platform: "bedrock", Model: "x"})
	require.NoError(t, err2)
	_, err = e.Import(ctx, bad)
	assert.True(t, models.IsValidation(err))
}
