// Package stats builds dashboard aggregates from the ledger's usage
// read model. One grouped query per response, joined in memory.
package stats

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

// Store is the slice of the ledger storage the aggregator reads.
type Store interface {
	ConversationUsage(ctx context.Context) ([]models.ConversationUsage, error)
}

type Overview struct {
	TotalConversations int64   `json:"total_conversations"`
	TotalMessages      int64   `json:"total_messages"`
	TotalTokens        int64   `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
}

type PlatformStats struct {
	Platform models.Platform `json:"platform"`
	Count    int64           `json:"count"`
	Tokens   int64           `json:"tokens"`
	Cost     float64         `json:"cost"`
}

type ModelStats struct {
	Model  string  `json:"model"`
	Count  int64   `json:"count"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

type MonthStats struct {
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Conversations int64   `json:"conversations"`
	Tokens        int64   `json:"tokens"`
	Cost          float64 `json:"cost"`
}

// Report is the full statistics response.
type Report struct {
	Overview
	ByPlatform   []PlatformStats `json:"by_platform"`
	ByModel      []ModelStats    `json:"by_model"`
	MonthlyUsage []MonthStats    `json:"monthly_usage"`
}

type Aggregator struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

func (a *Aggregator) Overview(ctx context.Context) (*Overview, error) {
	usage, err := a.store.ConversationUsage(ctx)
	if err != nil {
		return nil, err
	}
	return overview(usage), nil
}

// ByPlatform includes every platform that has at least one
// conversation, with zeroed figures when no usage was recorded.
func (a *Aggregator) ByPlatform(ctx context.Context) ([]PlatformStats, error) {
	usage, err := a.store.ConversationUsage(ctx)
	if err != nil {
		return nil, err
	}
	return byPlatform(usage), nil
}

func (a *Aggregator) ByModel(ctx context.Context) ([]ModelStats, error) {
	usage, err := a.store.ConversationUsage(ctx)
	if err != nil {
		return nil, err
	}
	return byModel(usage), nil
}

// MonthlyUsage groups by the conversation's creation month. Months with
// no activity are omitted; output is chronological.
func (a *Aggregator) MonthlyUsage(ctx context.Context) ([]MonthStats, error) {
	usage, err := a.store.ConversationUsage(ctx)
	if err != nil {
		return nil, err
	}
	return monthlyUsage(usage), nil
}

// Report computes every breakdown from a single usage query so the
// response is internally consistent.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	usage, err := a.store.ConversationUsage(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{
		Overview:     *overview(usage),
		ByPlatform:   byPlatform(usage),
		ByModel:      byModel(usage),
		MonthlyUsage: monthlyUsage(usage),
	}, nil
}

func overview(usage []models.ConversationUsage) *Overview {
	o := &Overview{TotalConversations: int64(len(usage))}
	for _, u := range usage {
		o.TotalMessages += u.Messages
		o.TotalTokens += u.Tokens
		o.TotalCost += u.Cost
	}
	return o
}

func byPlatform(usage []models.ConversationUsage) []PlatformStats {
	grouped := make(map[models.Platform]*PlatformStats)
	for _, u := range usage {
		g, ok := grouped[u.Platform]
		if !ok {
			g = &PlatformStats{Platform: u.Platform}
			grouped[u.Platform] = g
		}
		g.Count++
		g.Tokens += u.Tokens
		g.Cost += u.Cost
	}

	result := []PlatformStats{}
	for _, g := range grouped {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Platform < result[j].Platform })
	return result
}

func byModel(usage []models.ConversationUsage) []ModelStats {
	grouped := make(map[string]*ModelStats)
	for _, u := range usage {
		g, ok := grouped[u.Model]
		if !ok {
			g = &ModelStats{Model: u.Model}
			grouped[u.Model] = g
		}
		g.Count++
		g.Tokens += u.Tokens
		g.Cost += u.Cost
	}

	result := []ModelStats{}
	for _, g := range grouped {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Model < result[j].Model })
	return result
}

func monthlyUsage(usage []models.ConversationUsage) []MonthStats {
	type ym struct {
		year  int
		month int
	}
	grouped := make(map[ym]*MonthStats)
	for _, u := range usage {
		key := ym{year: u.CreatedAt.Year(), month: int(u.CreatedAt.Month())}
		g, ok := grouped[key]
		if !ok {
			g = &MonthStats{Year: key.year, Month: key.month}
			grouped[key] = g
		}
		g.Conversations++
		g.Tokens += u.Tokens
		g.Cost += u.Cost
	}

	result := []MonthStats{}
	for _, g := range grouped {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result
}
