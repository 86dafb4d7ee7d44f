package llm

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

const (
	gistSystem = `You are an expert email summarizer. Create a concise, actionable summary that captures the main purpose and key information of the email. ` +
		`The summary should be 1-2 sentences maximum and help the user understand what the email is about at a glance. ` +
		`Focus on: what the sender wants, any actions needed, important dates/deadlines, or key decisions. Avoid copying the email opening verbatim. ` +
		`Output strictly a JSON object: { "gist": string }. Do not include sensitive data like passwords, OTPs, or account numbers.`
	gistPrompt = `Read the entire email and create a meaningful summary that explains what this email is about. Do NOT just copy the first sentence. Return ONLY JSON: { "gist": string }`

	importanceSystem = `You are an expert at analyzing email importance. Output strictly JSON with this exact schema: { "importance": number }. ` +
		`Score from 0 to 1 using: sender authority, urgency, explicit deadlines, actionable requests, meeting invites, follow-ups. ` +
		`0=newsletters/spam, 0.3=general info, 0.5=normal business, 0.7=important, 1.0=urgent/critical. Only return the JSON object, no extra text.`
	importancePrompt = `Analyze the email and return ONLY JSON { "importance": number } with a value between 0 and 1.`

	deadlineSystem = `You are an expert at extracting dates from emails. Output strictly JSON with this exact schema: { "deadline": string | null }. ` +
		`Only include a date if explicitly present or strongly implied with a specific date; otherwise return null. ` +
		`When present, format date as YYYY-MM-DD. Return ONLY the JSON object, no extra text.`
	deadlinePrompt = `Extract a deadline / due date / meeting date if present, otherwise null. Return ONLY JSON { "deadline": string | null } with format YYYY-MM-DD when present.`

	gistInputLimit    = 3000
	contentInputLimit = 1500
)

var (
	ErrEmptyGist         = errors.New("llm: empty gist")
	ErrInvalidImportance = errors.New("llm: importance is not a number")

	isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

type emailInput struct {
	Sender  string `json:"sender,omitempty"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// ExtractGist summarizes an email body in one or two sentences.
func (c *Client) ExtractGist(ctx context.Context, text string) (string, error) {
	var out struct {
		Gist string `json:"gist"`
	}
	err := c.completeJSON(ctx, jsonRequest{
		purpose: "gist",
		system:  gistSystem,
		prompt:  gistPrompt,
		input:   truncateRunes(text, gistInputLimit),
	}, &out)
	if err != nil {
		return "", err
	}
	gist := strings.TrimSpace(out.Gist)
	if gist == "" {
		return "", ErrEmptyGist
	}
	return gist, nil
}

// ScoreImportance rates an email between 0 (noise) and 1 (urgent).
func (c *Client) ScoreImportance(ctx context.Context, text, sender, subject string) (float64, error) {
	var out struct {
		Importance json.RawMessage `json:"importance"`
	}
	err := c.completeJSON(ctx, jsonRequest{
		purpose: "importance",
		system:  importanceSystem,
		prompt:  importancePrompt,
		input:   emailInput{Sender: sender, Subject: subject, Content: truncateRunes(text, contentInputLimit)},
	}, &out)
	if err != nil {
		return 0, err
	}

	var score float64
	raw := bytes.TrimSpace(out.Importance)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || json.Unmarshal(raw, &score) != nil {
		return 0, ErrInvalidImportance
	}
	return clamp01(score), nil
}

// ExtractDeadline returns a YYYY-MM-DD date mentioned in the email, or nil.
func (c *Client) ExtractDeadline(ctx context.Context, text, subject string) (*string, error) {
	var out struct {
		Deadline *string `json:"deadline"`
	}
	err := c.completeJSON(ctx, jsonRequest{
		purpose: "deadline",
		system:  deadlineSystem,
		prompt:  deadlinePrompt,
		input:   emailInput{Subject: subject, Content: truncateRunes(text, contentInputLimit)},
	}, &out)
	if err != nil {
		return nil, err
	}
	return normalizeDeadline(out.Deadline), nil
}

func normalizeDeadline(d *string) *string {
	if d == nil {
		return nil
	}
	v := strings.TrimSpace(*d)
	if !isoDate.MatchString(v) {
		return nil
	}
	return &v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
