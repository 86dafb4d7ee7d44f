// Package provider implements the Gmail mail fetcher.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/metrics"
	"inboxt_server/pkg/resilience"
)

const (
	providerName = "gmail"
	// RecentQuery selects the last day of mail outside spam and trash.
	RecentQuery = "newer_than:1d -in:spam -in:trash"

	defaultMaxResults     = 50
	defaultConcurrency    = 10
	defaultMessageTimeout = 15 * time.Second
)

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides the Gmail API base URL (must end with "/").
	Endpoint string
	// TokenURL overrides Google's OAuth token endpoint.
	TokenURL       string
	HTTPClient     *http.Client
	MaxResults     int64
	Concurrency    int
	MessageTimeout time.Duration
}

// GmailAdapter implements out.MailFetcher.
type GmailAdapter struct {
	config         *oauth2.Config
	endpoint       string
	httpClient     *http.Client
	maxResults     int64
	concurrency    int
	messageTimeout time.Duration
	breaker        *resilience.Breaker
	now            func() time.Time
}

func NewGmailAdapter(cfg GmailConfig) *GmailAdapter {
	endpoint := google.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = defaultMessageTimeout
	}

	bc := resilience.DefaultBreakerConfig("gmail-api")
	bc.Ignore = isClientError

	return &GmailAdapter{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     endpoint,
		},
		endpoint:       cfg.Endpoint,
		httpClient:     cfg.HTTPClient,
		maxResults:     cfg.MaxResults,
		concurrency:    cfg.Concurrency,
		messageTimeout: cfg.MessageTimeout,
		breaker:        resilience.NewBreaker(bc),
		now:            time.Now,
	}
}

// FetchRecent lists the last day's messages and fetches each one in full.
// Messages that fail to load are skipped; a failing list call is returned.
func (a *GmailAdapter) FetchRecent(ctx context.Context, accessToken string) ([]domain.Email, error) {
	if accessToken == "" {
		return nil, out.NewProviderError(providerName, out.ProviderErrTokenExpired, "no access token", nil, false)
	}
	svc, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrNetwork, "failed to create service", err, true)
	}

	list, err := resilience.Do(a.breaker, func() (*gmail.ListMessagesResponse, error) {
		return svc.Users.Messages.List("me").
			Q(RecentQuery).
			MaxResults(a.maxResults).
			Context(ctx).
			Do()
	})
	metrics.GmailRequests.WithLabelValues("list", metrics.Status(err)).Inc()
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}
	if len(list.Messages) == 0 {
		return []domain.Email{}, nil
	}
	return a.fetchMessages(ctx, svc, list.Messages)
}

// fetchMessages loads messages with bounded parallelism, preserving list order.
func (a *GmailAdapter) fetchMessages(ctx context.Context, svc *gmail.Service, refs []*gmail.Message) ([]domain.Email, error) {
	results := make([]*domain.Email, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ref := range refs {
		i, id := i, ref.Id
		g.Go(func() error {
			msgCtx, cancel := context.WithTimeout(gctx, a.messageTimeout)
			defer cancel()

			msg, err := resilience.Do(a.breaker, func() (*gmail.Message, error) {
				return svc.Users.Messages.Get("me", id).Format("full").Context(msgCtx).Do()
			})
			metrics.GmailRequests.WithLabelValues("get", metrics.Status(err)).Inc()
			if err != nil {
				logger.WithField("message_id", id).WithError(err).Warn("skipping message that failed to load")
				return nil
			}
			email := parseMessage(msg, a.now())
			results[i] = &email
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emails := make([]domain.Email, 0, len(results))
	for _, e := range results {
		if e != nil {
			emails = append(emails, *e)
		}
	}
	return emails, nil
}

// RefreshAccessToken exchanges a refresh token at Google's token endpoint.
func (a *GmailAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", out.NewProviderError(providerName, out.ProviderErrTokenRevoked, "no refresh token stored", nil, false)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	metrics.TokenRefreshes.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		if isTokenRevoked(err) {
			return "", out.NewProviderError(providerName, out.ProviderErrTokenRevoked, "refresh token revoked", err, false)
		}
		return "", out.NewProviderError(providerName, out.ProviderErrNetwork, "failed to refresh token", err, true)
	}
	if tok.AccessToken == "" {
		return "", out.NewProviderError(providerName, out.ProviderErrAuth, "token endpoint returned no access token", nil, false)
	}
	return tok.AccessToken, nil
}

func (a *GmailAdapter) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient), src)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// State exposes the breaker state for health reporting.
func (a *GmailAdapter) State() string {
	return a.breaker.State()
}

func isClientError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}

func isTokenRevoked(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := err.Error()
	for _, marker := range []string{"invalid_grant", "invalid_client", "Token has been expired or revoked", "Token has been revoked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return out.NewProviderError(providerName, out.ProviderErrUnavailable, "Gmail temporarily unavailable", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token expired", err, false)
		case http.StatusForbidden:
			if isRateLimitReason(apiErr) {
				return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerName, out.ProviderErrAuth, "Access denied", err, false)
		case http.StatusNotFound:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, "Not found", err, false)
		case http.StatusTooManyRequests:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Too many requests", err, true)
		}
		if apiErr.Code >= 500 {
			return out.NewProviderError(providerName, out.ProviderErrServer, "Server error", err, true)
		}
		return out.NewProviderError(providerName, out.ProviderErrServer, fmt.Sprintf("%s (status %d)", defaultMsg, apiErr.Code), err, false)
	}
	return out.NewProviderError(providerName, out.ProviderErrNetwork, defaultMsg, err, true)
}

func isRateLimitReason(apiErr *googleapi.Error) bool {
	if strings.Contains(apiErr.Message, "Rate Limit") {
		return true
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

var _ out.MailFetcher = (*GmailAdapter)(nil)
