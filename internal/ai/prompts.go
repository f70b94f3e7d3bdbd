package ai

import (
	"fmt"
	"strings"

	"github.com/mrwolf/journal-server/internal/journal"
)

// SystemPreamble frames every conversation request.
const SystemPreamble = `You are a thoughtful journaling companion. The user will share a set of
their own journal entries and ask a question about them.

RULES:
1. Ground every statement in the entries provided
2. Do NOT invent events, feelings or details not present in the entries
3. Refer to entries by their date when it helps
4. Be warm but honest; do not flatter
5. Answer in plain prose, no markdown headers`

// BuildConversationPrompt combines the system preamble, a serialized
// rendering of each normalized entry and the user's question into a
// single prompt.
func BuildConversationPrompt(entries []journal.NormalizedEntry, question string) string {
	var sb strings.Builder

	sb.WriteString(SystemPreamble)
	sb.WriteString("\n\nJOURNAL ENTRIES:\n")

	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("--- Entry %d (%s, %s) ---\n", i+1, e.CreatedAt.Format("2006-01-02"), e.Type))
		sb.WriteString(e.Content)
		sb.WriteString("\n")
		if e.Feeling != nil {
			sb.WriteString(fmt.Sprintf("Feeling: %g/10\n", *e.Feeling))
		}
		if len(e.Emotions) > 0 {
			sb.WriteString("Emotions: " + strings.Join(e.Emotions, ", ") + "\n")
		}
		if len(e.Tags) > 0 {
			sb.WriteString("Tags: " + strings.Join(e.Tags, ", ") + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer now:")

	return sb.String()
}
