package in

import (
	"context"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

// SearchService ranks a user's digest entries and tasks against a free-text query.
type SearchService interface {
	Search(ctx context.Context, userID uuid.UUID, query string) ([]domain.SearchHit, error)
}
