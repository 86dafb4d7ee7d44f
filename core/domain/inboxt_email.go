package domain

import "time"

// Email is a Gmail message normalized for summarization.
type Email struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// GmailLink is the web UI deep link for a message id.
func GmailLink(messageID string) string {
	return "https://mail.google.com/mail/u/0/#inbox/" + messageID
}
