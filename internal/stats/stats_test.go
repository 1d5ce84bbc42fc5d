package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

type fakeStore struct {
	usage []models.ConversationUsage
}

func (f *fakeStore) ConversationUsage(ctx context.Context) ([]models.ConversationUsage, error) {
	return f.usage, nil
}

func date(year int, month time.Month) time.Time {
	return time.Date(year, month, 15, 12, 0, 0, 0, time.UTC)
}

func TestReportEmptyStore(t *testing.T) {
	agg := New(&fakeStore{}, zap.NewNop())

	report, err := agg.Report(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.TotalConversations)
	assert.Zero(t, report.TotalMessages)
	assert.Zero(t, report.TotalCost)
	// Empty slices, not null, so the JSON shape stays stable.
	assert.NotNil(t, report.ByPlatform)
	assert.Empty(t, report.ByPlatform)
	assert.NotNil(t, report.ByModel)
	assert.Empty(t, report.ByModel)
	assert.NotNil(t, report.MonthlyUsage)
	assert.Empty(t, report.MonthlyUsage)
}

func TestReportGrouping(t *testing.T) {
	store := &fakeStore{usage: []models.ConversationUsage{
		{ConversationID: 1, Platform: models.PlatformOpenAI, Model: "gpt-4", CreatedAt: date(2024, time.January), Messages: 4, Tokens: 1000, Cost: 0.04},
		{ConversationID: 2, Platform: models.PlatformOpenAI, Model: "gpt-3.5-turbo", CreatedAt: date(2024, time.March), Messages: 2, Tokens: 500, Cost: 0.001},
		{ConversationID: 3, Platform: models.PlatformAnthropic, Model: "claude-3-haiku-20240307", CreatedAt: date(2024, time.March), Messages: 6, Tokens: 2000, Cost: 0.002},
		{ConversationID: 4, Platform: models.PlatformAnthropic, Model: "claude-3-haiku-20240307", CreatedAt: date(2023, time.December)},
	}}
	agg := New(store, zap.NewNop())
	report, err := agg.Report(context.Background())
	require.NoError(t, err)

	t.Run("overview", func(t *testing.T) {
		assert.EqualValues(t, 4, report.TotalConversations)
		assert.EqualValues(t, 12, report.TotalMessages)
		assert.EqualValues(t, 3500, report.TotalTokens)
		assert.InDelta(t, 0.043, report.TotalCost, 1e-9)
	})

	t.Run("by platform, alphabetical", func(t *testing.T) {
		require.Len(t, report.ByPlatform, 2)
		assert.Equal(t, models.PlatformAnthropic, report.ByPlatform[0].Platform)
		assert.EqualValues(t, 2, report.ByPlatform[0].Count)
		assert.EqualValues(t, 2000, report.ByPlatform[0].Tokens)
		assert.Equal(t, models.PlatformOpenAI, report.ByPlatform[1].Platform)
		assert.EqualValues(t, 1500, report.ByPlatform[1].Tokens)
	})

	t.Run("by model", func(t *testing.T) {
		require.Len(t, report.ByModel, 3)
		assert.Equal(t, "claude-3-haiku-20240307", report.ByModel[0].Model)
		assert.EqualValues(t, 2, report.ByModel[0].Count)
	})

	t.Run("monthly, chronological, gaps omitted", func(t *testing.T) {
		require.Len(t, report.MonthlyUsage, 3)
		assert.Equal(t, 2023, report.MonthlyUsage[0].Year)
		assert.Equal(t, 12, report.MonthlyUsage[0].Month)
		assert.Equal(t, 2024, report.MonthlyUsage[1].Year)
		assert.Equal(t, 1, report.MonthlyUsage[1].Month)
		assert.Equal(t, 3, report.MonthlyUsage[2].Month)
		assert.EqualValues(t, 2, report.MonthlyUsage[2].Conversations)
		assert.EqualValues(t, 2500, report.MonthlyUsage[2].Tokens)
	})
}

func TestConversationWithoutMessagesCountsAsZero(t *testing.T) {
	store := &fakeStore{usage: []models.ConversationUsage{
		{ConversationID: 1, Platform: models.PlatformGoogle, Model: "gemini-pro", CreatedAt: date(2024, time.May)},
	}}
	agg := New(store, zap.NewNop())

	byPlatform, err := agg.ByPlatform(context.Background())
	require.NoError(t, err)
	require.Len(t, byPlatform, 1)
	assert.Equal(t, models.PlatformGoogle, byPlatform[0].Platform)
	assert.EqualValues(t, 1, byPlatform[0].Count)
	assert.Zero(t, byPlatform[0].Tokens)
	assert.Zero(t, byPlatform[0].Cost)
}
