package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mrwolf/journal-server/internal/ai"
	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/internal/config"
	"github.com/mrwolf/journal-server/internal/db"
	"github.com/mrwolf/journal-server/internal/guided"
	"github.com/mrwolf/journal-server/internal/insights"
	"github.com/mrwolf/journal-server/internal/journal"
	"github.com/mrwolf/journal-server/internal/models"
	"github.com/mrwolf/journal-server/pkg/fault"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Field: field})
}

// writeFault maps an error from the domain layers onto an HTTP status
// and a safe client-facing message. Anything unclassified is a plain
// server error with no detail leaked.
func writeFault(w http.ResponseWriter, err error) {
	kind, ok := fault.KindOf(err)
	if !ok {
		log.Printf("unclassified error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	msg := err.Error()
	if f, okf := err.(*fault.Fault); okf {
		msg = f.Message
	}

	switch kind {
	case fault.Validation:
		writeError(w, http.StatusBadRequest, msg, fault.FieldOf(err))
	case fault.UpstreamUnavailable:
		writeError(w, http.StatusServiceUnavailable, msg, "")
	case fault.Upstream:
		writeError(w, http.StatusBadGateway, msg, "")
	default:
		// Configuration faults never reach the client raw.
		log.Printf("configuration error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	catalog   *catalog.Catalog
	assembler *guided.Assembler
	builder   *journal.Builder
	orch      *ai.Orchestrator
	gen       ai.Generator
}

func NewHandlers(cfg *config.Config, database *db.DB, cat *catalog.Catalog, gen ai.Generator) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        database,
		catalog:   cat,
		assembler: guided.NewAssembler(cat),
		builder:   journal.NewBuilder(database, cat),
		orch: ai.NewOrchestrator(gen, ai.Config{
			Models:         cfg.AIModels,
			AttemptTimeout: cfg.AITimeout,
			MaxReplyLen:    cfg.AIMaxReply,
		}),
		gen: gen,
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		Database:  h.checkDatabase(),
		Assistant: h.checkAssistant(r.Context()),
		Version:   "1.0.0",
		Time:      time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkDatabase() string {
	if err := h.db.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkAssistant(ctx context.Context) string {
	hc, ok := h.gen.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hc.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

// GuidedQuestions handles POST /api/v1/guided/questions. The client
// posts the answers it has collected so far and receives the questions
// still to show, in catalog order.
func (h *Handlers) GuidedQuestions(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Answers == nil {
		req.Answers = map[string]any{}
	}

	questions := h.assembler.BuildQuestionSequence(req.Answers)

	views := make([]models.QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, questionView(q))
	}
	writeJSON(w, http.StatusOK, models.QuestionsResponse{Questions: views})
}

func questionView(q catalog.Question) models.QuestionView {
	v := models.QuestionView{
		ID:       q.ID,
		Type:     string(q.Type),
		Prompt:   q.Prompt,
		Required: q.Required,
		Options:  q.Options,
	}
	if q.Type == catalog.TypeNumberScale {
		min, max := q.Min, q.Max
		v.Min = &min
		v.Max = &max
	}
	return v
}

// CreateGuidedEntry handles POST /api/v1/entries/guided
func (h *Handlers) CreateGuidedEntry(w http.ResponseWriter, r *http.Request) {
	var req models.GuidedEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields must not be empty", "fields")
		return
	}

	answers, err := h.assembler.ParseSubmission(req.Fields)
	if err != nil {
		writeFault(w, err)
		return
	}

	actor := GetActor(r)
	entryID := "ent_" + uuid.NewString()
	now := time.Now().UTC()

	entry := db.EntryRecord{
		EntryID:   entryID,
		Actor:     actor,
		Type:      journal.TypeGuided,
		CreatedAt: now,
	}

	var answerRecords []db.AnswerRecord
	var tags []db.TagRecord
	for i, a := range answers {
		encoded, merr := json.Marshal(a.Value)
		if merr != nil {
			writeError(w, http.StatusInternalServerError, "internal error", "")
			return
		}
		answerRecords = append(answerRecords, db.AnswerRecord{
			EntryID:    entryID,
			QuestionID: a.QuestionID,
			Value:      string(encoded),
			Position:   i,
		})

		// Denormalize the two fixed signals so list filters and the
		// nightly rollup never have to unpack answer JSON.
		switch a.QuestionID {
		case catalog.QuestionFeelingScale:
			if score, okf := a.Value.(float64); okf {
				s := score
				entry.Feeling = &s
			}
		case catalog.QuestionEmotions:
			if emotions, oke := a.Value.([]string); oke {
				for _, em := range emotions {
					tags = append(tags, db.TagRecord{Tag: em, Kind: db.TagEmotion})
				}
			}
		}
	}

	if err := h.db.CreateEntry(entry, answerRecords, tags); err != nil {
		log.Printf("failed to store guided entry %s: %v", entryID, err)
		writeError(w, http.StatusInternalServerError, "failed to store entry", "")
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateEntryResponse{ID: entryID, CreatedAt: now})
}

// CreateQuickEntry handles POST /api/v1/entries/quick
func (h *Handlers) CreateQuickEntry(w http.ResponseWriter, r *http.Request) {
	var req models.QuickEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty", "text")
		return
	}
	if req.Feeling != nil && (*req.Feeling < 1 || *req.Feeling > 10) {
		writeError(w, http.StatusBadRequest, "feeling must be between 1 and 10", "feeling")
		return
	}

	var tags []db.TagRecord
	seen := map[string]bool{}
	for _, em := range req.Emotions {
		em = strings.ToLower(strings.TrimSpace(em))
		if !catalog.IsEmotion(em) || seen["e:"+em] {
			continue
		}
		seen["e:"+em] = true
		tags = append(tags, db.TagRecord{Tag: em, Kind: db.TagEmotion})
	}
	for _, t := range req.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen["c:"+t] {
			continue
		}
		seen["c:"+t] = true
		tags = append(tags, db.TagRecord{Tag: t, Kind: db.TagCategory})
	}

	actor := GetActor(r)
	entryID := "ent_" + uuid.NewString()
	now := time.Now().UTC()

	entry := db.EntryRecord{
		EntryID:   entryID,
		Actor:     actor,
		Type:      journal.TypeQuick,
		Content:   text,
		Feeling:   req.Feeling,
		CreatedAt: now,
	}

	if err := h.db.CreateEntry(entry, nil, tags); err != nil {
		log.Printf("failed to store quick entry %s: %v", entryID, err)
		writeError(w, http.StatusInternalServerError, "failed to store entry", "")
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateEntryResponse{ID: entryID, CreatedAt: now})
}

// ListEntries handles GET /api/v1/entries
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)
	q := r.URL.Query()

	filters := journal.Filters{Type: q.Get("type")}
	if filters.Type != "" && filters.Type != journal.TypeQuick && filters.Type != journal.TypeGuided {
		writeError(w, http.StatusBadRequest, "type must be quick or guided", "type")
		return
	}
	for _, t := range q["tag"] {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			filters.Tags = append(filters.Tags, t)
		}
	}

	var err error
	if filters.From, err = parseDay(q.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", "from")
		return
	}
	if filters.To, err = parseDay(q.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", "to")
		return
	}

	entries, err := h.builder.Normalize(actor, nil, filters)
	if err != nil {
		log.Printf("failed to list entries for %s: %v", actor, err)
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}

	// Substring search and limit apply after normalization so guided
	// entries match on their assembled content.
	if needle := strings.ToLower(strings.TrimSpace(q.Get("q"))); needle != "" {
		var kept []journal.NormalizedEntry
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Content), needle) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, lerr := strconv.Atoi(limitStr)
		if lerr != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "limit")
			return
		}
		if len(entries) > limit {
			// Keep the most recent entries, still oldest first.
			entries = entries[len(entries)-limit:]
		}
	}

	views := make([]models.EntryResponse, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	writeJSON(w, http.StatusOK, models.EntriesResponse{Entries: views, Count: len(views)})
}

// GetEntry handles GET /api/v1/entries/{id}
func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)
	entryID := chi.URLParam(r, "id")

	entries, err := h.builder.Normalize(actor, []string{entryID}, journal.Filters{})
	if err != nil {
		log.Printf("failed to load entry %s: %v", entryID, err)
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "entry not found", "")
		return
	}

	view := entryView(entries[0])
	if entries[0].Type == journal.TypeGuided {
		answers, err := h.db.GetAnswers(entryID)
		if err != nil {
			log.Printf("failed to load answers for %s: %v", entryID, err)
			writeError(w, http.StatusInternalServerError, "database error", "")
			return
		}
		for _, a := range answers {
			var value any
			if err := json.Unmarshal([]byte(a.Value), &value); err != nil {
				log.Printf("skipping undecodable answer %s/%s: %v", entryID, a.QuestionID, err)
				continue
			}
			view.Answers = append(view.Answers, models.AnswerView{QuestionID: a.QuestionID, Value: value})
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// DeleteEntry handles DELETE /api/v1/entries/{id}
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)
	entryID := chi.URLParam(r, "id")

	deleted, err := h.db.DeleteEntry(actor, entryID)
	if err != nil {
		log.Printf("failed to delete entry %s: %v", entryID, err)
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "entry not found", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Conversation handles POST /api/v1/ai/conversation
func (h *Handlers) Conversation(w http.ResponseWriter, r *http.Request) {
	var req models.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty", "question")
		return
	}

	filters := journal.Filters{Type: req.Type, Tags: req.Tags}
	var err error
	if filters.From, err = parseDay(req.From, false); err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", "from")
		return
	}
	if filters.To, err = parseDay(req.To, true); err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", "to")
		return
	}

	actor := GetActor(r)
	entries, err := h.builder.Normalize(actor, req.EntryIDs, filters)
	if err != nil {
		log.Printf("failed to resolve entries for conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}

	conversationID := "cnv_" + uuid.NewString()

	reply, err := h.orch.Converse(r.Context(), ai.ConversationRequest{
		Entries:  entries,
		Question: req.Question,
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	model := strings.Join(h.cfg.AIModels, ",")
	if lerr := h.db.LogConversation(conversationID, actor, req.Question, len(entries), model, status); lerr != nil {
		log.Printf("failed to log conversation %s: %v", conversationID, lerr)
	}

	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ConversationResponse{ID: conversationID, Response: reply})
}

// MoodInsights handles GET /api/v1/insights/mood
func (h *Handlers) MoodInsights(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)

	days := 30
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365", "days")
			return
		}
		days = parsed
	}

	// Computed live from entries so the view never lags the nightly
	// materialization.
	now := time.Now().UTC()
	stats, err := insights.BuildMoodStats(h.db, actor, now.AddDate(0, 0, -days), now)
	if err != nil {
		log.Printf("failed to build mood stats for %s: %v", actor, err)
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}

	views := make([]models.MoodDayView, 0, len(stats))
	for _, s := range stats {
		views = append(views, models.MoodDayView{
			Day:         s.Day,
			EntryCount:  s.EntryCount,
			AvgFeeling:  s.AvgFeeling,
			TopEmotions: s.TopEmotions,
		})
	}
	writeJSON(w, http.StatusOK, models.MoodResponse{Days: views})
}

func entryView(e journal.NormalizedEntry) models.EntryResponse {
	return models.EntryResponse{
		ID:        e.ID,
		Type:      e.Type,
		CreatedAt: e.CreatedAt,
		Content:   e.Content,
		Feeling:   e.Feeling,
		Emotions:  e.Emotions,
		Tags:      e.Tags,
	}
}

// parseDay parses YYYY-MM-DD. End-of-window dates cover the whole day.
func parseDay(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
