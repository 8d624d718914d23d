package domain

import "time"

// Payload keys as stored in the vector collections.
const (
	KeyID          = "id"
	KeySubject     = "subject"
	KeyBody        = "body"
	KeyPriority    = "priority"
	KeyTopics      = "topics"
	KeyKeywords    = "keywords"
	KeySentiment   = "sentiment"
	KeyCreatedAt   = "created_at"
	KeyUserID      = "user_id"
	KeyInputText   = "input_text"
	KeyLLMResponse = "llm_response"
	KeyText        = "text"
	KeyURL         = "url"
	KeyURLID       = "url_id"
	KeyParentID    = "parent_id"
)

// MissingTicketID is used when an incoming ticket has no id.
const MissingTicketID = "no_id"

// RawTicket is one item of an incoming ticket batch. Any field may be absent.
type RawTicket struct {
	ID      *string `json:"id,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Body    *string `json:"body,omitempty"`
}

// TicketRecord is the classified, archived form of a ticket.
type TicketRecord struct {
	ID        string
	Subject   string
	Body      string
	Priority  string
	Topics    string
	Keywords  string
	Sentiment string
	CreatedAt time.Time
	Vector    []float32
}

func (t TicketRecord) Payload() map[string]any {
	return map[string]any{
		KeyID:        t.ID,
		KeySubject:   t.Subject,
		KeyBody:      t.Body,
		KeyPriority:  t.Priority,
		KeyTopics:    t.Topics,
		KeyKeywords:  t.Keywords,
		KeySentiment: t.Sentiment,
		KeyCreatedAt: FormatTimestamp(t.CreatedAt),
	}
}

// ItemResult reports the outcome for one ticket in a batch.
type ItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func (r ItemResult) OK() bool { return r.Status == StatusSuccess }

// ChatTurn is one stored question/answer exchange for a user.
type ChatTurn struct {
	UserID      string
	InputText   string
	LLMResponse string
	CreatedAt   time.Time
	Vector      []float32
}

func (c ChatTurn) Payload() map[string]any {
	return map[string]any{
		KeyUserID:      c.UserID,
		KeyInputText:   c.InputText,
		KeyLLMResponse: c.LLMResponse,
		KeyCreatedAt:   FormatTimestamp(c.CreatedAt),
	}
}

// Document is a retrieved knowledge-base passage.
type Document struct {
	ID       string
	Text     string
	URL      string
	URLID    string
	ParentID string
	Score    float32
}

// SourceID is the id passages are grouped under: parent, then url id,
// then the point id.
func (d Document) SourceID() string {
	switch {
	case d.ParentID != "":
		return d.ParentID
	case d.URLID != "":
		return d.URLID
	default:
		return d.ID
	}
}

type ChatRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type ChatResponse struct {
	UserID      string   `json:"user_id"`
	LLMResponse string   `json:"LLM_Response"`
	CitedURLs   []string `json:"Cited_URLs"`
}

// FormatTimestamp renders t as ISO-8601 in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
