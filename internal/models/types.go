package models

import "time"

// QuestionsRequest carries the answers gathered so far in a guided
// session. The server replies with the questions still to be shown.
type QuestionsRequest struct {
	Answers map[string]any `json:"answers"`
}

// QuestionView is the client-facing shape of a catalog question.
type QuestionView struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Prompt   string   `json:"prompt"`
	Required bool     `json:"required"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// QuestionsResponse lists the visible questions in presentation order.
type QuestionsResponse struct {
	Questions []QuestionView `json:"questions"`
}

// GuidedEntryRequest is a completed guided session. Fields maps
// question id to the raw string the client collected for it.
type GuidedEntryRequest struct {
	Fields map[string]string `json:"fields"`
}

// QuickEntryRequest is a freeform entry.
type QuickEntryRequest struct {
	Text     string   `json:"text"`
	Feeling  *float64 `json:"feeling,omitempty"`
	Emotions []string `json:"emotions,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// AnswerView is one typed answer behind a guided entry. Value decodes
// to a string, number, bool or list depending on the question type.
type AnswerView struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// EntryResponse is the normalized view of a stored entry. Answers is
// populated only on the detail view of a guided entry.
type EntryResponse struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
	Content   string       `json:"content"`
	Feeling   *float64     `json:"feeling,omitempty"`
	Emotions  []string     `json:"emotions,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	Answers   []AnswerView `json:"answers,omitempty"`
}

// EntriesResponse wraps a list query result.
type EntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
	Count   int             `json:"count"`
}

// CreateEntryResponse acknowledges a stored entry.
type CreateEntryResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRequest asks the assistant a question over a selection
// of entries. EntryIDs selects entries explicitly; when empty the
// filter fields choose them instead.
type ConversationRequest struct {
	EntryIDs []string `json:"entry_ids,omitempty"`
	Question string   `json:"question"`
	Type     string   `json:"type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
}

// ConversationResponse carries the assistant's reply.
type ConversationResponse struct {
	ID       string `json:"id"`
	Response string `json:"response"`
}

// MoodDayView is one day of materialized mood statistics.
type MoodDayView struct {
	Day         string   `json:"day"`
	EntryCount  int      `json:"entry_count"`
	AvgFeeling  *float64 `json:"avg_feeling,omitempty"`
	TopEmotions []string `json:"top_emotions,omitempty"`
}

// MoodResponse is the insights payload for a date window.
type MoodResponse struct {
	Days []MoodDayView `json:"days"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Assistant string    `json:"assistant"`
	Version   string    `json:"version"`
	Time      time.Time `json:"time"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
