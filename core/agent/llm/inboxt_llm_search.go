package llm

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"inboxt_server/core/domain"
)

const searchSystem = `You are an expert at semantic search. Rank the provided items by relevance to the query. ` +
	`Return a JSON object { "results": [ { "id": string, "score": number, "reason": string } ] } where score is 0-1 ` +
	`and reason explains the relevance. Only include items with score > 0.3.`

type rankedItem struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// rankResponse accepts either {"results": [...]} or a bare array.
type rankResponse []rankedItem

func (r *rankResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []rankedItem
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*r = items
		return nil
	}
	var wrapped struct {
		Results []rankedItem `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*r = wrapped.Results
	return nil
}

// RankItems orders items by relevance to query. Only the first 50 items are sent;
// hits scoring 0.3 or less, or naming unknown ids, are dropped and at most 20 returned.
func (c *Client) RankItems(ctx context.Context, query string, items []domain.SearchItem) ([]domain.SearchHit, error) {
	if len(items) > domain.MaxSearchCandidates {
		items = items[:domain.MaxSearchCandidates]
	}
	if len(items) == 0 {
		return []domain.SearchHit{}, nil
	}

	var ranked rankResponse
	err := c.completeJSON(ctx, jsonRequest{
		purpose: "search",
		system:  searchSystem,
		prompt:  fmt.Sprintf("Rank these items by relevance to the query: %q", query),
		input: map[string]any{
			"query": query,
			"items": items,
		},
	}, &ranked)
	if err != nil {
		return nil, err
	}
	return filterHits(ranked, items), nil
}

func filterHits(ranked []rankedItem, items []domain.SearchItem) []domain.SearchHit {
	byID := make(map[string]domain.SearchItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	hits := make([]domain.SearchHit, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		it, ok := byID[r.ID]
		if r.ID == "" || !ok || seen[r.ID] || r.Score <= domain.MinSearchScore {
			continue
		}
		seen[r.ID] = true
		hits = append(hits, domain.SearchHit{
			ID:     r.ID,
			Kind:   it.Kind,
			Text:   it.Text,
			Score:  clamp01(r.Score),
			Reason: r.Reason,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > domain.MaxSearchResults {
		hits = hits[:domain.MaxSearchResults]
	}
	return hits
}
