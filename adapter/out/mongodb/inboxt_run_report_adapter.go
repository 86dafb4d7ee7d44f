package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

const (
	collectionRunReports = "digest_run_reports"
	maxReportList        = 100
)

// RunReportAdapter implements out.RunReportStore. Reports expire after the
// configured retention through a TTL index on expires_at.
type RunReportAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
}

func NewRunReportAdapter(db *mongo.Database, retention time.Duration) *RunReportAdapter {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RunReportAdapter{
		collection: db.Collection(collectionRunReports),
		retention:  retention,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *RunReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type statsDocument struct {
	EmailsFetched    int   `bson:"emails_fetched"`
	EmailsProcessed  int   `bson:"emails_processed"`
	AICalls          int   `bson:"ai_calls"`
	Errors           int   `bson:"errors"`
	ProcessingTimeMs int64 `bson:"processing_time_ms"`
}

type reportDocument struct {
	ID        string        `bson:"id"`
	UserID    string        `bson:"user_id"`
	Date      string        `bson:"date"`
	Trigger   string        `bson:"trigger"`
	Status    string        `bson:"status"`
	Error     string        `bson:"error,omitempty"`
	Stats     statsDocument `bson:"stats"`
	Selected  int           `bson:"selected"`
	CreatedAt time.Time     `bson:"created_at"`
	ExpiresAt time.Time     `bson:"expires_at"`
}

func (a *RunReportAdapter) toDocument(r *domain.RunReport) reportDocument {
	return reportDocument{
		ID:      r.ID.String(),
		UserID:  r.UserID.String(),
		Date:    r.Date,
		Trigger: string(r.Trigger),
		Status:  string(r.Status),
		Error:   r.Error,
		Stats: statsDocument{
			EmailsFetched:    r.Stats.EmailsFetched,
			EmailsProcessed:  r.Stats.EmailsProcessed,
			AICalls:          r.Stats.AICalls,
			Errors:           r.Stats.Errors,
			ProcessingTimeMs: r.Stats.ProcessingTimeMs,
		},
		Selected:  r.Selected,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.CreatedAt.Add(a.retention),
	}
}

func (d *reportDocument) toDomain() *domain.RunReport {
	id, _ := uuid.Parse(d.ID)
	userID, _ := uuid.Parse(d.UserID)
	return &domain.RunReport{
		ID:      id,
		UserID:  userID,
		Date:    d.Date,
		Trigger: domain.DigestTrigger(d.Trigger),
		Status:  domain.RunStatus(d.Status),
		Error:   d.Error,
		Stats: domain.ProcessingStats{
			EmailsFetched:    d.Stats.EmailsFetched,
			EmailsProcessed:  d.Stats.EmailsProcessed,
			AICalls:          d.Stats.AICalls,
			Errors:           d.Stats.Errors,
			ProcessingTimeMs: d.Stats.ProcessingTimeMs,
		},
		Selected:  d.Selected,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// Save upserts a report by id.
func (a *RunReportAdapter) Save(ctx context.Context, r *domain.RunReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	doc := a.toDocument(r)

	_, err := a.collection.ReplaceOne(ctx, bson.M{"id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

// ListByUser returns the user's latest reports, newest first.
func (a *RunReportAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 || limit > maxReportList {
		limit = maxReportList
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reportDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode run reports: %w", err)
	}

	reports := make([]*domain.RunReport, len(docs))
	for i := range docs {
		reports[i] = docs[i].toDomain()
	}
	return reports, nil
}

var _ out.RunReportStore = (*RunReportAdapter)(nil)
