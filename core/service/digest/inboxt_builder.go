// Package digest builds and serves the daily email digests.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/metrics"
)

const (
	gistFallback    = "Unable to summarize"
	processFallback = "Unable to process"
	callsPerEmail   = 3

	defaultConcurrency = 3
)

// Builder turns a user's last day of mail into a digest.
type Builder struct {
	users   out.UserRepository
	digests out.DigestRepository
	mail    out.MailFetcher
	llm     out.DigestLLM

	// Optional collaborators. Nil disables the feature.
	reports out.RunReportStore
	graph   out.SenderGraph
	cache   out.JSONCache

	concurrency int
	now         func() time.Time
}

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	Users   out.UserRepository
	Digests out.DigestRepository
	Mail    out.MailFetcher
	LLM     out.DigestLLM
	Reports out.RunReportStore
	Graph   out.SenderGraph
	Cache   out.JSONCache

	// Concurrency bounds how many emails are summarized at once.
	Concurrency int
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Builder{
		users:       cfg.Users,
		digests:     cfg.Digests,
		mail:        cfg.Mail,
		llm:         cfg.LLM,
		reports:     cfg.Reports,
		graph:       cfg.Graph,
		cache:       cfg.Cache,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

// BuildForUser loads the user and builds their digest.
func (b *Builder) BuildForUser(ctx context.Context, userID uuid.UUID, trigger domain.DigestTrigger) (*domain.BuildResult, error) {
	user, err := b.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}
	return b.Build(ctx, user, trigger)
}

// Build fetches, summarizes, ranks and stores today's digest for user.
//
// Initial and manual builds replace an existing digest for the day. Scheduled
// builds never overwrite one: the result comes back with Existing set.
// On failure the error comes with a result holding only the stats gathered so far.
func (b *Builder) Build(ctx context.Context, user *domain.User, trigger domain.DigestTrigger) (res *domain.BuildResult, err error) {
	start := b.now()
	date := domain.DigestDate(start)
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": user.ID.String(),
		"trigger": string(trigger),
		"date":    date,
	})

	var stats domain.ProcessingStats
	defer func() {
		stats.ProcessingTimeMs = time.Since(start).Milliseconds()
		if err != nil {
			res = &domain.BuildResult{TotalFetched: stats.EmailsFetched}
		}
		if res != nil {
			res.Stats = stats
		}
		status := domain.RunSuccess
		switch {
		case err != nil:
			status = domain.RunError
		case res != nil && res.Existing:
			status = domain.RunSkipped
		}
		metrics.DigestRuns.WithLabelValues(string(trigger), string(status)).Inc()
		metrics.ObserveSince(metrics.DigestDuration.WithLabelValues(string(trigger)), start)
		b.saveReport(ctx, user.ID, date, trigger, status, stats, res, err)
	}()

	emails, err := b.fetchEmails(ctx, user.ID)
	if err != nil {
		log.WithError(err).Warn("gmail fetch failed")
		return nil, err
	}
	stats.EmailsFetched = len(emails)
	log.Info("fetched %d emails", len(emails))

	entries := b.processEmails(ctx, emails, &stats)
	selected := domain.SelectTop(entries, user.Prefs.EffectiveTopN())
	log.Info("kept %d of %d emails with importance >= %.1f, top %d",
		len(selected), len(entries), domain.ImportanceThreshold, user.Prefs.EffectiveTopN())

	digest := &domain.Digest{
		UserID:    user.ID,
		Date:      date,
		Emails:    selected,
		CreatedAt: b.now().UTC(),
	}

	if trigger == domain.TriggerScheduled {
		err = b.digests.Insert(ctx, digest)
		if errors.Is(err, out.ErrDuplicate) {
			log.Info("digest already exists for today")
			return &domain.BuildResult{Digest: digest, TotalFetched: len(emails), Existing: true}, nil
		}
	} else {
		err = b.digests.Upsert(ctx, digest)
	}
	if err != nil {
		return nil, apperr.DatabaseError("save digest", err)
	}

	b.afterSave(ctx, digest)
	log.Info("digest saved with %d entries", len(selected))

	return &domain.BuildResult{Digest: digest, TotalFetched: len(emails)}, nil
}

// fetchEmails reads recent mail, refreshing the access token once when Gmail
// reports it expired.
func (b *Builder) fetchEmails(ctx context.Context, userID uuid.UUID) ([]domain.Email, error) {
	tokens, err := b.users.GetGmailTokens(ctx, userID)
	if err != nil && !errors.Is(err, out.ErrNotFound) {
		return nil, apperr.DatabaseError("get gmail tokens", err)
	}
	if tokens == nil || !tokens.Connected() {
		return nil, apperr.GmailNotConnected()
	}

	emails, err := b.mail.FetchRecent(ctx, tokens.AccessToken)
	if err == nil {
		return emails, nil
	}
	if !out.IsTokenExpired(err) {
		return nil, providerError(err)
	}
	if tokens.RefreshToken == "" {
		return nil, apperr.ReauthRequired(err)
	}

	logger.WithContext(ctx).WithField("user_id", userID.String()).Info("access token expired, refreshing")
	fresh, rerr := b.mail.RefreshAccessToken(ctx, tokens.RefreshToken)
	if rerr != nil {
		if out.IsRetryable(rerr) {
			return nil, apperr.ExternalError("gmail", rerr)
		}
		return nil, apperr.ReauthRequired(rerr)
	}
	if serr := b.users.SaveGmailAccessToken(ctx, userID, fresh); serr != nil {
		logger.WithContext(ctx).WithError(serr).Warn("failed to persist refreshed access token")
	}

	emails, err = b.mail.FetchRecent(ctx, fresh)
	if err != nil {
		return nil, providerError(err)
	}
	return emails, nil
}

func providerError(err error) error {
	switch out.ProviderErrorCodeOf(err) {
	case out.ProviderErrTokenExpired, out.ProviderErrTokenRevoked, out.ProviderErrAuth:
		return apperr.ReauthRequired(err)
	case out.ProviderErrRateLimit:
		return apperr.RateLimited("Gmail rate limit exceeded").WithError(err)
	}
	return apperr.ExternalError("gmail", err)
}

type outcome struct {
	entry  domain.DigestEntry
	failed bool
}

// processEmails summarizes emails with bounded concurrency. Entries keep the
// input order so ties in importance rank by Gmail order.
func (b *Builder) processEmails(ctx context.Context, emails []domain.Email, stats *domain.ProcessingStats) []domain.DigestEntry {
	outcomes := make([]outcome, len(emails))

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for i := range emails {
		i := i
		g.Go(func() error {
			outcomes[i] = b.processEmail(ctx, emails[i])
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]domain.DigestEntry, len(outcomes))
	for i, o := range outcomes {
		entries[i] = o.entry
		stats.AICalls += callsPerEmail
		if o.failed {
			stats.Errors++
			metrics.EmailsProcessed.WithLabelValues("fallback").Inc()
			continue
		}
		stats.EmailsProcessed++
		metrics.EmailsProcessed.WithLabelValues("success").Inc()
	}
	return entries
}

// processEmail runs the three completions for one email. Each call has its own
// fallback; an unexpected failure produces a low-importance placeholder entry.
func (b *Builder) processEmail(ctx context.Context, e domain.Email) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("email_id", e.ID).Error("processing email panicked: %v", r)
			o = outcome{entry: fallbackEntry(e, b.now()), failed: true}
		}
	}()

	log := logger.WithField("email_id", e.ID)

	gist, err := b.llm.ExtractGist(ctx, e.Text)
	if err != nil || gist == "" {
		if err != nil {
			log.WithError(err).Warn("gist extraction failed")
		}
		gist = e.Snippet
		if gist == "" {
			gist = gistFallback
		}
	}

	importance, err := b.llm.ScoreImportance(ctx, e.Text, e.Sender, e.Subject)
	if err != nil {
		log.WithError(err).Warn("importance scoring failed")
		importance = domain.DefaultImportance
	}

	deadline, err := b.llm.ExtractDeadline(ctx, e.Text, e.Subject)
	if err != nil {
		log.WithError(err).Warn("deadline extraction failed")
		deadline = nil
	}

	return outcome{entry: domain.DigestEntry{
		EmailID:         e.ID,
		Gist:            gist,
		Sender:          e.Sender,
		Subject:         e.Subject,
		Link:            domain.GmailLink(e.ID),
		ImportanceScore: importance,
		Deadline:        deadline,
		ProcessedAt:     b.now().UTC(),
	}}
}

func fallbackEntry(e domain.Email, now time.Time) domain.DigestEntry {
	gist := e.Snippet
	if gist == "" {
		gist = processFallback
	}
	return domain.DigestEntry{
		EmailID:         e.ID,
		Gist:            gist,
		Sender:          e.Sender,
		Subject:         e.Subject,
		Link:            domain.GmailLink(e.ID),
		ImportanceScore: domain.FallbackImportance,
		ProcessedAt:     now.UTC(),
	}
}

// afterSave refreshes derived state. Failures are logged only.
func (b *Builder) afterSave(ctx context.Context, d *domain.Digest) {
	if b.cache != nil {
		if err := b.cache.Delete(ctx, todayKey(d.UserID, d.Date)); err != nil {
			logger.WithError(err).Warn("failed to invalidate digest cache")
		}
	}
	if b.graph != nil && len(d.Emails) > 0 {
		if err := b.graph.RecordDigest(ctx, d.UserID, d.Emails); err != nil {
			logger.WithError(err).Warn("failed to record senders in graph")
		}
	}
}

func (b *Builder) saveReport(ctx context.Context, userID uuid.UUID, date string, trigger domain.DigestTrigger,
	status domain.RunStatus, stats domain.ProcessingStats, res *domain.BuildResult, buildErr error) {
	if b.reports == nil {
		return
	}
	report := &domain.RunReport{
		ID:        uuid.New(),
		UserID:    userID,
		Date:      date,
		Trigger:   trigger,
		Status:    status,
		Stats:     stats,
		CreatedAt: b.now().UTC(),
	}
	if buildErr != nil {
		report.Error = buildErr.Error()
	}
	if res != nil && res.Digest != nil {
		report.Selected = len(res.Digest.Emails)
	}

	// Reports are written even when ctx was cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := b.reports.Save(rctx, report); err != nil {
		logger.WithError(err).Warn("failed to save run report")
	}
}

func todayKey(userID uuid.UUID, date string) string {
	return fmt.Sprintf("digest:%s:%s", userID, date)
}
