package domain

type SearchItemKind string

const (
	SearchDigestEntry SearchItemKind = "digest_entry"
	SearchTask        SearchItemKind = "task"
)

// SearchItem is a candidate passed to the ranking model.
type SearchItem struct {
	ID   string         `json:"id"`
	Kind SearchItemKind `json:"kind"`
	Text string         `json:"text"`
}

// SearchHit is a ranked search result.
type SearchHit struct {
	ID     string         `json:"id"`
	Kind   SearchItemKind `json:"kind"`
	Text   string         `json:"text"`
	Score  float64        `json:"score"`
	Reason string         `json:"reason,omitempty"`
}

const (
	MaxSearchCandidates = 50
	MaxSearchResults    = 20
	MinSearchScore      = 0.3
)
