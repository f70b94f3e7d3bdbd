package journal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/internal/db"
)

// Entry type constants
const (
	TypeQuick  = "quick"
	TypeGuided = "guided"
)

// NormalizedEntry is the flattened representation of a quick or guided
// entry consumed by the AI conversation feature. Derived per request,
// never persisted.
type NormalizedEntry struct {
	ID        string
	CreatedAt time.Time
	Type      string
	Content   string
	Feeling   *float64
	Emotions  []string
	Tags      []string
}

// Filters narrows entry selection. Zero values mean "no constraint".
type Filters struct {
	Type string
	Tags []string   // entry must carry every listed tag
	From *time.Time // inclusive
	To   *time.Time // inclusive
}

// Builder resolves entries and normalizes them for downstream
// consumption.
type Builder struct {
	db      *db.DB
	catalog *catalog.Catalog
}

func NewBuilder(database *db.DB, c *catalog.Catalog) *Builder {
	return &Builder{db: database, catalog: c}
}

// Normalize resolves entry ids for the actor, honoring the filters, and
// returns normalized entries in chronological ascending order. Entries
// the actor does not own are silently excluded, never surfaced as an
// error. With no ids, all the actor's entries matching the filters are
// used.
func (b *Builder) Normalize(actor string, entryIDs []string, f Filters) ([]NormalizedEntry, error) {
	var records []db.EntryRecord
	var err error

	if len(entryIDs) > 0 {
		records, err = b.db.ListEntriesByID(actor, entryIDs)
	} else {
		records, err = b.db.ListEntries(actor, db.EntryFilter{
			Type: f.Type,
			Tags: f.Tags,
			From: f.From,
			To:   f.To,
		})
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, r := range records {
		ids = append(ids, r.EntryID)
	}

	tagsByEntry, err := b.db.GetTagsForEntries(ids)
	if err != nil {
		return nil, err
	}
	answersByEntry, err := b.db.GetAnswersForEntries(ids)
	if err != nil {
		return nil, err
	}

	var normalized []NormalizedEntry
	for _, r := range records {
		if !matches(r, tagsByEntry[r.EntryID], f) {
			continue
		}
		normalized = append(normalized, b.normalizeOne(r, tagsByEntry[r.EntryID], answersByEntry[r.EntryID]))
	}

	return normalized, nil
}

func (b *Builder) normalizeOne(r db.EntryRecord, tags []db.TagRecord, answers []db.AnswerRecord) NormalizedEntry {
	n := NormalizedEntry{
		ID:        r.EntryID,
		CreatedAt: r.CreatedAt,
		Type:      r.Type,
	}

	for _, t := range tags {
		if t.Kind == db.TagCategory {
			n.Tags = append(n.Tags, t.Tag)
		}
	}

	if r.Type == TypeGuided && len(answers) > 0 {
		n.Content = b.guidedSummary(answers)
		n.Feeling = guidedFeeling(answers)
		n.Emotions = guidedEmotions(answers)
		return n
	}

	n.Content = r.Content
	n.Feeling = r.Feeling
	for _, t := range tags {
		if t.Kind == db.TagEmotion {
			n.Emotions = append(n.Emotions, t.Tag)
		}
	}
	return n
}

// guidedSummary concatenates non-empty free-text answers in catalog
// order.
func (b *Builder) guidedSummary(answers []db.AnswerRecord) string {
	var parts []string
	for _, a := range answers {
		q, ok := b.catalog.Get(a.QuestionID)
		if !ok || q.Type != catalog.TypeText {
			continue
		}
		var text string
		if err := json.Unmarshal([]byte(a.Value), &text); err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func guidedFeeling(answers []db.AnswerRecord) *float64 {
	for _, a := range answers {
		if a.QuestionID != catalog.QuestionFeelingScale {
			continue
		}
		var score float64
		if err := json.Unmarshal([]byte(a.Value), &score); err != nil {
			return nil
		}
		return &score
	}
	return nil
}

func guidedEmotions(answers []db.AnswerRecord) []string {
	for _, a := range answers {
		if a.QuestionID != catalog.QuestionEmotions {
			continue
		}
		var emotions []string
		if err := json.Unmarshal([]byte(a.Value), &emotions); err != nil {
			return nil
		}
		return emotions
	}
	return nil
}

func matches(r db.EntryRecord, tags []db.TagRecord, f Filters) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}

	if len(f.Tags) > 0 {
		have := make(map[string]bool, len(tags))
		for _, t := range tags {
			have[t.Tag] = true
		}
		for _, want := range f.Tags {
			if !have[want] {
				return false
			}
		}
	}

	return true
}
