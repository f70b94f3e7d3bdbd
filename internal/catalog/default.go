package catalog

import "sort"

// Emotion vocabulary for multi-select-emotion answers. Submitted
// emotions outside this list are dropped, not rejected.
var emotionVocabulary = map[string]bool{
	"happy":       true,
	"calm":        true,
	"grateful":    true,
	"excited":     true,
	"hopeful":     true,
	"proud":       true,
	"tired":       true,
	"anxious":     true,
	"sad":         true,
	"angry":       true,
	"stressed":    true,
	"lonely":      true,
	"overwhelmed": true,
}

// IsEmotion reports whether the vocabulary contains the emotion.
func IsEmotion(emotion string) bool {
	return emotionVocabulary[emotion]
}

// Emotions returns the vocabulary in sorted order.
func Emotions() []string {
	var out []string
	for e := range emotionVocabulary {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Default returns the built-in guided-journal catalog.
func Default() (*Catalog, error) {
	return New([]Question{
		{
			ID:       "day_summary",
			Prompt:   "How was your day?",
			Type:     TypeText,
			Required: true,
		},
		{
			ID:       QuestionFeelingScale,
			Prompt:   "How do you feel right now, from 1 to 10?",
			Type:     TypeNumberScale,
			Min:      1,
			Max:      10,
			Required: true,
		},
		{
			ID:        "low_mood_note",
			Prompt:    "Sounds like a rough day. What weighed on you most?",
			Type:      TypeText,
			Required:  true,
			Condition: "feeling_scale <= 4",
		},
		{
			ID:     QuestionEmotions,
			Prompt: "Which emotions showed up today?",
			Type:   TypeMultiEmotion,
		},
		{
			ID:       "slept_well",
			Prompt:   "Did you sleep well last night?",
			Type:     TypeBoolean,
			Required: true,
		},
		{
			ID:        "sleep_note",
			Prompt:    "What kept you from sleeping well?",
			Type:      TypeText,
			Condition: "slept_well == false",
		},
		{
			ID:       "exercised",
			Prompt:   "Did you move your body today?",
			Type:     TypeSingleSelect,
			Options:  []string{"Yes", "No"},
			Required: true,
		},
		{
			ID:        "exercise_note",
			Prompt:    "What did you do?",
			Type:      TypeText,
			Condition: `exercised == "Yes"`,
		},
		{
			ID:     "gratitude",
			Prompt: "Anything you're grateful for today?",
			Type:   TypeText,
		},
	})
}
