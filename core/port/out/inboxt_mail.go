package out

import (
	"context"
	"errors"

	"inboxt_server/core/domain"
)

// MailFetcher reads a user's recent mail and renews their access token.
type MailFetcher interface {
	// FetchRecent returns the last day's messages outside spam and trash.
	FetchRecent(ctx context.Context, accessToken string) ([]domain.Email, error)
	// RefreshAccessToken exchanges a refresh token for a new access token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrTokenRevoked ProviderErrorCode = "token_revoked"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrUnavailable  ProviderErrorCode = "unavailable"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// ProviderErrorCodeOf returns the code of a ProviderError in err's chain, or "".
func ProviderErrorCodeOf(err error) ProviderErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsTokenExpired reports whether err means the access token must be refreshed.
func IsTokenExpired(err error) bool {
	return ProviderErrorCodeOf(err) == ProviderErrTokenExpired
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
