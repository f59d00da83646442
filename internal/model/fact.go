package model

import "time"

// Fact is a durable, user-scoped piece of remembered context. Retrieval
// score is Relevance * Confidence; access bumps Relevance (see storage
// RecordFactAccess).
type Fact struct {
	FactID     string    `json:"fact_id"`
	UserID     string    `json:"user_id"`
	FactType   string    `json:"fact_type"`
	Subject    string    `json:"subject"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"` // 0-1
	Relevance  float64   `json:"relevance"`  // 0-1
	Tags       []string  `json:"tags,omitempty"`
	AccessCount int      `json:"access_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// RetrievalScore is the ranking score used when selecting facts for
// session-start injection.
func (f Fact) RetrievalScore() float64 {
	return f.Relevance * f.Confidence
}
