// Package search provides full-text lookup over message content. It is
// a pure view over persisted messages, recomputed on every query.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

// Store is the slice of the ledger storage the searcher needs.
type Store interface {
	SearchMessages(ctx context.Context, terms []string, limit int) ([]*models.Message, error)
}

// Result is one ranked hit with a bounded snippet around the first
// match.
type Result struct {
	ConversationID int64   `json:"conversation_id"`
	MessageID      int64   `json:"message_id"`
	Snippet        string  `json:"snippet"`
	Rank           float64 `json:"rank"`
}

const (
	snippetMax = 200
	// Candidates are over-fetched so phrase hits buried under newer
	// token-only hits still make the cut.
	candidateFactor = 8
	defaultLimit    = 20
	maxScanLimit    = 500

	rankPhrase = 2.0
	rankTokens = 1.0
)

type Searcher struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Searcher {
	return &Searcher{store: store, logger: logger}
}

// Search matches case-insensitively: messages containing the exact
// phrase rank above messages merely containing every token, with
// newest-first as tie-break.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	phrase := strings.ToLower(strings.TrimSpace(query))
	if phrase == "" {
		return []Result{}, nil
	}
	terms := strings.Fields(phrase)
	if limit <= 0 {
		limit = defaultLimit
	}

	candidates, err := s.store.SearchMessages(ctx, terms, limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, m := range candidates {
		rank := rankTokens
		matchIdx, matchLen := foldIndex(m.Content, terms[0])
		if idx, n := foldIndex(m.Content, phrase); idx >= 0 {
			rank = rankPhrase
			matchIdx, matchLen = idx, n
		}
		results = append(results, Result{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			Snippet:        snippet(m.Content, matchIdx, matchLen),
			Rank:           rank,
		})
	}

	// Candidates arrive newest-first; a stable sort keeps that order
	// within each rank band.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rank > results[j].Rank
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ConversationIDs resolves a query to distinct conversation ids in
// ranked order, for use as a listing filter.
func (s *Searcher) ConversationIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = maxScanLimit
	}
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(results))
	ids := []int64{}
	for _, r := range results {
		if _, ok := seen[r.ConversationID]; ok {
			continue
		}
		seen[r.ConversationID] = struct{}{}
		ids = append(ids, r.ConversationID)
	}
	return ids, nil
}

// foldIndex finds the first case-insensitive occurrence of needle in
// content, where needle is already lowercased. Offsets and lengths are
// byte positions in the original string, so they stay valid for
// slicing even when case mapping changes a rune's encoded length.
// Returns -1, 0 when absent.
func foldIndex(content, needle string) (int, int) {
	if needle == "" {
		return -1, 0
	}
	for i := 0; i < len(content); {
		if n, ok := foldMatch(content[i:], needle); ok {
			return i, n
		}
		_, size := utf8.DecodeRuneInString(content[i:])
		i += size
	}
	return -1, 0
}

// foldMatch reports whether s begins with needle under simple case
// folding, and the matched length in bytes of s.
func foldMatch(s, needle string) (int, bool) {
	var n int
	for _, want := range needle {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || unicode.ToLower(r) != want {
			return 0, false
		}
		n += size
	}
	return n, true
}

// snippet cuts a window of at most snippetMax bytes around the match,
// snapped to rune boundaries and trimmed at word boundaries.
func snippet(content string, matchIdx, matchLen int) string {
	if len(content) <= snippetMax {
		return content
	}
	if matchIdx < 0 || matchIdx > len(content) {
		matchIdx, matchLen = 0, 0
	}
	if matchLen > len(content)-matchIdx {
		matchLen = len(content) - matchIdx
	}

	start := matchIdx - (snippetMax-matchLen)/2
	if start < 0 {
		start = 0
	}
	end := start + snippetMax
	if end > len(content) {
		end = len(content)
		start = end - snippetMax
	}
	if start > matchIdx {
		start = matchIdx
	}

	// The window must not split a rune at either edge.
	for start < len(content) && !utf8.RuneStart(content[start]) {
		start++
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end--
	}

	matchEnd := matchIdx + matchLen
	if matchEnd > end {
		matchEnd = end
	}

	// Move the edges onto word boundaries; shrinking only, so the cap
	// holds.
	if start > 0 && start < matchIdx {
		if cut := strings.IndexByte(content[start:matchIdx], ' '); cut >= 0 {
			start += cut + 1
		}
	}
	if end < len(content) && matchEnd < end {
		if cut := strings.LastIndexByte(content[matchEnd:end], ' '); cut >= 0 {
			end = matchEnd + cut
		}
	}
	return strings.TrimSpace(content[start:end])
}
