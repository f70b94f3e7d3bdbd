package ai

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mrwolf/journal-server/internal/journal"
	"github.com/mrwolf/journal-server/pkg/fault"
)

// Appended when a reply exceeds the configured maximum length.
const truncationMarker = " [...]"

// Generator is the abstract backend capability the orchestrator
// dispatches to.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ConversationRequest carries the normalized entries and the user's
// question for one Converse call.
type ConversationRequest struct {
	Entries  []journal.NormalizedEntry
	Question string
}

// Config holds orchestrator settings
type Config struct {
	Models         []string      // candidate models, tried in order
	AttemptTimeout time.Duration // per-candidate deadline
	MaxReplyLen    int           // replies longer than this are truncated
}

// Orchestrator tries candidate models in order until one answers.
// There is no retry budget beyond the candidate list and no backoff:
// this sits on a synchronous, user-waiting request path.
type Orchestrator struct {
	gen Generator
	cfg Config
}

func NewOrchestrator(gen Generator, cfg Config) *Orchestrator {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	return &Orchestrator{gen: gen, cfg: cfg}
}

// Converse validates the request, builds the prompt and dispatches it
// to each candidate model in turn. A transient failure advances to the
// next candidate without surfacing anything to the caller; a fatal
// failure aborts immediately. The returned text is trimmed and, past
// the configured maximum, truncated with a marker.
func (o *Orchestrator) Converse(ctx context.Context, req ConversationRequest) (string, error) {
	if len(req.Entries) == 0 {
		return "", fault.NewValidation("entries", "at least one entry is required")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", fault.NewValidation("question", "question must not be empty")
	}

	prompt := BuildConversationPrompt(req.Entries, question)

	for _, model := range o.cfg.Models {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		text, err := o.gen.Generate(attemptCtx, model, prompt)
		cancel()

		if err == nil {
			return o.finish(text), nil
		}

		if !fault.IsTransient(err) {
			// Full detail stays server-side; the caller gets a generic
			// message with no credential or config detail.
			log.Printf("ai: fatal backend error on model %s: %v", model, err)
			return "", fault.NewUpstream("the assistant could not process this request", nil)
		}

		log.Printf("ai: model %s failed, trying next candidate: %v", model, err)
	}

	return "", fault.NewUnavailable("the assistant is temporarily unavailable, please try again", nil)
}

func (o *Orchestrator) finish(text string) string {
	text = strings.TrimSpace(text)
	if o.cfg.MaxReplyLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= o.cfg.MaxReplyLen {
		return text
	}
	return string(runes[:o.cfg.MaxReplyLen]) + truncationMarker
}
