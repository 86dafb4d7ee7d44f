package provider

import (
	"encoding/base64"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"inboxt_server/core/domain"
)

const (
	maxTextLen    = 5000
	maxSnippetLen = 200
	unknownSender = "Unknown"
	noSubject     = "No Subject"
)

var (
	angleAddr  = regexp.MustCompile(`<([^>]+)>`)
	softBreak  = regexp.MustCompile(`=\r?\n`)
	lineBreak  = regexp.MustCompile(`\r?\n`)
	whitespace = regexp.MustCompile(`\s+`)
	htmlTag    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
)

// parseMessage normalizes a format=full Gmail message.
func parseMessage(msg *gmail.Message, now time.Time) domain.Email {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	text := cleanText(extractText(msg.Payload))

	snippet := html.UnescapeString(msg.Snippet)
	if snippet == "" {
		snippet = truncate(text, maxSnippetLen)
	}

	return domain.Email{
		ID:        msg.Id,
		Sender:    cleanSender(header(headers, "From")),
		Subject:   cleanSubject(header(headers, "Subject")),
		Snippet:   snippet,
		Text:      text,
		Timestamp: parseDate(header(headers, "Date"), now),
	}
}

// extractText returns the part's own body when it has one, otherwise the
// concatenation of its text/plain children, descending into nested multiparts.
func extractText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.Body != nil && part.Body.Data != "" {
		text := decodeBase64URL(part.Body.Data)
		if strings.HasPrefix(part.MimeType, "text/html") {
			text = stripHTML(text)
		}
		return text
	}

	var sb strings.Builder
	for _, p := range part.Parts {
		switch {
		case p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "":
			sb.WriteString(decodeBase64URL(p.Body.Data))
		case len(p.Parts) > 0:
			sb.WriteString(extractText(p))
		}
	}
	return sb.String()
}

// decodeBase64URL decodes Gmail body data, tolerating missing padding.
// Undecodable data yields an empty string.
func decodeBase64URL(data string) string {
	trimmed := strings.TrimRight(data, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return string(b)
	}
	if b, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return string(b)
	}
	return ""
}

// cleanText removes quoted-printable soft breaks, flattens whitespace and
// truncates the result for prompting.
func cleanText(s string) string {
	s = softBreak.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), maxTextLen)
}

func stripHTML(s string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(s, " "))
}

// cleanSender extracts the address from "Name <addr>" forms.
func cleanSender(from string) string {
	if m := angleAddr.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	if from = strings.TrimSpace(from); from == "" {
		return unknownSender
	}
	return from
}

// cleanSubject defaults a missing or empty header; a whitespace-only one trims to "".
func cleanSubject(subject string) string {
	if subject == "" {
		return noSubject
	}
	return strings.TrimSpace(subject)
}

func parseDate(value string, now time.Time) time.Time {
	if value == "" {
		return now.UTC()
	}
	t, err := mail.ParseDate(value)
	if err != nil {
		return now.UTC()
	}
	return t.UTC()
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
