package guided

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/pkg/fault"
)

// Answer is a typed answer to one catalog question. Value is a string,
// float64, bool or []string depending on the question type.
type Answer struct {
	QuestionID string
	Value      any
}

var truthyTokens = map[string]bool{"true": true, "yes": true, "1": true, "on": true}
var falsyTokens = map[string]bool{"false": true, "no": true, "0": true, "off": true}

// Assembler walks the question catalog in declared order, deciding
// visibility from the answers collected so far.
type Assembler struct {
	catalog *catalog.Catalog
}

func NewAssembler(c *catalog.Catalog) *Assembler {
	return &Assembler{catalog: c}
}

// BuildQuestionSequence returns the ordered visible sequence for the
// given answer context. Conditions see only answers to earlier
// questions, so the sequence is stable under re-evaluation.
func (a *Assembler) BuildQuestionSequence(answers map[string]any) []catalog.Question {
	var visible []catalog.Question
	for _, q := range a.catalog.Questions() {
		if q.Visible(answers) {
			visible = append(visible, q)
		}
	}
	return visible
}

// ParseSubmission maps posted field values back into typed answers.
// Visibility is recomputed here against the answers being parsed, never
// trusted from the client: fields for questions whose condition is false
// are ignored, and a required visible question without a value fails
// validation naming that question.
func (a *Assembler) ParseSubmission(fields map[string]string) ([]Answer, error) {
	answers := make(map[string]any)
	var parsed []Answer

	for _, q := range a.catalog.Questions() {
		if !q.Visible(answers) {
			// Stale client state may still post a value here; drop it.
			continue
		}

		raw, ok := fields[q.ID]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			if q.Required {
				return nil, fault.NewValidation(q.ID, fmt.Sprintf("question %q requires an answer", q.ID))
			}
			continue
		}

		value, err := coerce(&q, raw)
		if err != nil {
			return nil, err
		}

		answers[q.ID] = value
		parsed = append(parsed, Answer{QuestionID: q.ID, Value: value})
	}

	return parsed, nil
}

// AnswerContext rebuilds the visibility context from stored answers,
// keyed by question id.
func AnswerContext(answers []Answer) map[string]any {
	ctx := make(map[string]any, len(answers))
	for _, ans := range answers {
		ctx[ans.QuestionID] = ans.Value
	}
	return ctx
}

func coerce(q *catalog.Question, raw string) (any, error) {
	switch q.Type {
	case catalog.TypeText:
		return raw, nil

	case catalog.TypeNumberScale:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fault.NewValidation(q.ID, fmt.Sprintf("question %q expects a number", q.ID))
		}
		if value < q.Min || value > q.Max {
			return nil, fault.NewValidation(q.ID,
				fmt.Sprintf("question %q expects a value between %g and %g", q.ID, q.Min, q.Max))
		}
		return value, nil

	case catalog.TypeBoolean:
		token := strings.ToLower(raw)
		if truthyTokens[token] {
			return true, nil
		}
		if falsyTokens[token] {
			return false, nil
		}
		return nil, fault.NewValidation(q.ID, fmt.Sprintf("question %q expects yes or no", q.ID))

	case catalog.TypeSingleSelect:
		for _, opt := range q.Options {
			if raw == opt {
				return raw, nil
			}
		}
		return nil, fault.NewValidation(q.ID, fmt.Sprintf("question %q got an unknown option", q.ID))

	case catalog.TypeMultiEmotion:
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fault.NewValidation(q.ID, fmt.Sprintf("question %q expects a JSON list of emotions", q.ID))
		}
		// Unknown emotions are dropped, not rejected.
		emotions := []string{}
		for _, item := range items {
			item = strings.ToLower(strings.TrimSpace(item))
			if catalog.IsEmotion(item) {
				emotions = append(emotions, item)
			}
		}
		return emotions, nil

	default:
		return nil, fault.NewConfiguration(fmt.Sprintf("question %q has unknown type %q", q.ID, q.Type), nil)
	}
}
