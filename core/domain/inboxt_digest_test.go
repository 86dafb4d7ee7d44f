package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func entry(id string, score float64) DigestEntry {
	return DigestEntry{EmailID: id, ImportanceScore: score}
}

func ids(entries []DigestEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.EmailID
	}
	return out
}

func TestSelectTop(t *testing.T) {
	in := []DigestEntry{
		entry("a", 0.2),
		entry("b", 0.9),
		entry("c", 0.4),
		entry("d", 0.7),
		entry("e", 0.7),
		entry("f", 0.39),
	}

	tests := []struct {
		name string
		topN int
		want []string
	}{
		{"all above threshold", 10, []string{"b", "d", "e", "c"}},
		{"truncated", 2, []string{"b", "d"}},
		{"ties keep input order", 3, []string{"b", "d", "e"}},
		{"zero", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SelectTop(in, tt.topN)))
		})
	}
	assert.Equal(t, "a", in[0].EmailID, "input must not be reordered")
}

func TestDigestDate(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	ts := time.Date(2025, 3, 2, 7, 0, 0, 0, loc)
	assert.Equal(t, "2025-03-01", DigestDate(ts))
}

func TestPreferences(t *testing.T) {
	assert.Equal(t, 5, Preferences{}.EffectiveTopN())
	assert.Equal(t, 1, Preferences{TopN: -3}.EffectiveTopN())
	assert.Equal(t, 10, Preferences{TopN: 42}.EffectiveTopN())
	assert.Equal(t, 7, Preferences{TopN: 7}.EffectiveTopN())
	assert.Equal(t, "08:00", Preferences{}.EffectiveCheckTime())
}

func TestConversationTitle(t *testing.T) {
	short := "What's due this week?"
	assert.Equal(t, short, ConversationTitle(short))

	long := "Summarize every email I got from the finance team about the Q3 budget review"
	got := ConversationTitle(long)
	assert.Equal(t, long[:50]+"...", got)
}

func TestGmailLinkAndTokens(t *testing.T) {
	assert.Equal(t, "https://mail.google.com/mail/u/0/#inbox/18c2", GmailLink("18c2"))
	assert.False(t, GmailTokens{}.Connected())
	assert.True(t, GmailTokens{RefreshToken: "r"}.Connected())
}
