// Package search ranks a user's digest entries and tasks against a query.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
)

const (
	maxQueryLen     = 500
	candidateDays   = 7
	candidateTasks  = 25
	defaultCacheTTL = 5 * time.Minute
)

// Service implements in.SearchService.
type Service struct {
	digests  out.DigestRepository
	tasks    out.TaskRepository
	ranker   out.SearchRanker
	cache    out.JSONCache
	cacheTTL time.Duration
}

func NewService(digests out.DigestRepository, tasks out.TaskRepository, ranker out.SearchRanker, cache out.JSONCache) *Service {
	return &Service{
		digests:  digests,
		tasks:    tasks,
		ranker:   ranker,
		cache:    cache,
		cacheTTL: defaultCacheTTL,
	}
}

func (s *Service) Search(ctx context.Context, userID uuid.UUID, query string) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.MissingField("q")
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		return nil, apperr.InvalidInput("q", "query is too long")
	}

	key := cacheKey(userID, query)
	if s.cache != nil {
		var cached []domain.SearchHit
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			logger.WithField("cache_key", key).Debug("search cache hit")
			return cached, nil
		}
	}

	items, err := s.candidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []domain.SearchHit{}, nil
	}

	hits, err := s.ranker.RankItems(ctx, query, items)
	if err != nil {
		switch {
		case errors.Is(err, out.ErrLLMRateLimited):
			return nil, apperr.RateLimited("Rate limit exceeded. Please try again in a moment.").WithError(err)
		case errors.Is(err, out.ErrLLMQuotaExceeded):
			return nil, apperr.QuotaExceeded("AI service quota exceeded. Please contact support.").WithError(err)
		}
		return nil, apperr.ExternalError("llm", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, hits, s.cacheTTL); err != nil {
			logger.WithError(err).Warn("search cache write failed")
		}
	}
	return hits, nil
}

// candidates collects recent digest entries first, then open tasks, capped at
// domain.MaxSearchCandidates.
func (s *Service) candidates(ctx context.Context, userID uuid.UUID) ([]domain.SearchItem, error) {
	digests, err := s.digests.ListRecent(ctx, userID, candidateDays)
	if err != nil {
		return nil, apperr.DatabaseError("list digests", err)
	}
	items := make([]domain.SearchItem, 0, domain.MaxSearchCandidates)
	for _, d := range digests {
		for _, e := range d.Emails {
			items = append(items, domain.SearchItem{
				ID:   "email:" + e.EmailID,
				Kind: domain.SearchDigestEntry,
				Text: fmt.Sprintf("%s | From: %s | Subject: %s | %s", d.Date, e.Sender, e.Subject, e.Gist),
			})
		}
	}

	tasks, err := s.tasks.List(ctx, userID, domain.TaskFilter{Limit: candidateTasks})
	if err != nil {
		return nil, apperr.DatabaseError("list tasks", err)
	}
	for _, t := range tasks {
		text := t.Title
		if t.Description != nil && *t.Description != "" {
			text += " | " + *t.Description
		}
		if t.Deadline != nil {
			text += " | due " + *t.Deadline
		}
		items = append(items, domain.SearchItem{
			ID:   "task:" + t.ID.String(),
			Kind: domain.SearchTask,
			Text: fmt.Sprintf("[%s] %s", t.Status, text),
		})
	}

	if len(items) > domain.MaxSearchCandidates {
		items = items[:domain.MaxSearchCandidates]
	}
	return items, nil
}

func cacheKey(userID uuid.UUID, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return fmt.Sprintf("search:%s:%s", userID, hex.EncodeToString(sum[:8]))
}

var _ in.SearchService = (*Service)(nil)
