package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// ImportanceThreshold is the minimum score for an entry to be listed in a digest.
	ImportanceThreshold = 0.4
	// DefaultImportance is used when scoring fails.
	DefaultImportance = 0.5
	// FallbackImportance is used when an email could not be processed at all.
	FallbackImportance = 0.3

	DateLayout = "2006-01-02"
)

// DigestEntry is one summarized email inside a digest.
type DigestEntry struct {
	EmailID         string    `json:"email_id"`
	Gist            string    `json:"gist"`
	Sender          string    `json:"sender"`
	Subject         string    `json:"subject"`
	Link            string    `json:"link"`
	ImportanceScore float64   `json:"importance_score"`
	Deadline        *string   `json:"deadline"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// Digest is the per-user, per-day list of important emails.
type Digest struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	Date      string        `json:"date"`
	Emails    []DigestEntry `json:"emails"`
	CreatedAt time.Time     `json:"created_at"`
}

// Entry looks up an entry by Gmail message id.
func (d *Digest) Entry(emailID string) (DigestEntry, bool) {
	for _, e := range d.Emails {
		if e.EmailID == emailID {
			return e, true
		}
	}
	return DigestEntry{}, false
}

// DigestDate returns the UTC calendar date a digest built at t belongs to.
func DigestDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// SelectTop keeps entries at or above the importance threshold, orders them by
// descending score and returns at most topN of them. Equal scores keep input order.
func SelectTop(entries []DigestEntry, topN int) []DigestEntry {
	kept := make([]DigestEntry, 0, len(entries))
	for _, e := range entries {
		if e.ImportanceScore >= ImportanceThreshold {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ImportanceScore > kept[j].ImportanceScore
	})
	if topN >= 0 && len(kept) > topN {
		kept = kept[:topN]
	}
	return kept
}

// DigestTrigger says what started a digest build.
type DigestTrigger string

const (
	TriggerInitial   DigestTrigger = "initial"
	TriggerScheduled DigestTrigger = "scheduled"
	TriggerManual    DigestTrigger = "manual"
)

// ProcessingStats counts the work done for one digest build.
type ProcessingStats struct {
	EmailsFetched    int   `json:"emailsFetched"`
	EmailsProcessed  int   `json:"emailsProcessed"`
	AICalls          int   `json:"aiCalls"`
	Errors           int   `json:"errors"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// BuildResult is the outcome of a single digest build.
type BuildResult struct {
	Digest       *Digest         `json:"digest"`
	TotalFetched int             `json:"totalFetched"`
	Stats        ProcessingStats `json:"stats"`
	// Existing is set when today's digest was already stored and nothing was built.
	Existing bool `json:"existing"`
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunError   RunStatus = "error"
)

// UserRunResult reports one user's outcome in a daily run.
type UserRunResult struct {
	UserID          uuid.UUID `json:"userId"`
	Email           string    `json:"email"`
	Status          RunStatus `json:"status"`
	EmailsProcessed int       `json:"emailsProcessed"`
	Message         string    `json:"message,omitempty"`
	Error           string    `json:"error,omitempty"`

	// Err carries the underlying failure for callers deciding on a retry.
	Err error `json:"-"`
}

// DailyRunSummary is returned by a daily digest run.
type DailyRunSummary struct {
	Success        bool            `json:"success"`
	ProcessedUsers int             `json:"processedUsers"`
	Results        []UserRunResult `json:"results"`
}

// RunReport is the audit record written for every digest build.
type RunReport struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Date      string          `json:"date"`
	Trigger   DigestTrigger   `json:"trigger"`
	Status    RunStatus       `json:"status"`
	Error     string          `json:"error,omitempty"`
	Stats     ProcessingStats `json:"stats"`
	Selected  int             `json:"selected"`
	CreatedAt time.Time       `json:"created_at"`
}
