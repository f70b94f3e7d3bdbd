package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/internal/config"
	"github.com/mrwolf/journal-server/internal/db"
	"github.com/mrwolf/journal-server/pkg/fault"
)

// stubGenerator answers every model with a canned reply or error.
type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func setupTestServer(t *testing.T, gen *stubGenerator) (*httptest.Server, *db.DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "journal-test-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}

	dbPath := tmpDir + "/test.db"

	cfg := &config.Config{
		Port:       "0",
		DBPath:     dbPath,
		AIModels:   []string{"test-model"},
		AITimeout:  5 * time.Second,
		AIMaxReply: 4000,
		Tokens: map[string]string{
			"test_mira_token": "mira",
			"test_theo_token": "theo",
		},
		Timezone: "UTC",
	}

	database, err := db.Open(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("opening database: %v", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		database.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("building catalog: %v", err)
	}

	if gen == nil {
		gen = &stubGenerator{reply: "a thoughtful reply"}
	}

	router := NewRouter(cfg, database, cat, gen)
	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return server, database, cleanup
}

func doJSON(t *testing.T, method, url, token, payload string) *http.Response {
	t.Helper()

	var body *bytes.Buffer
	if payload != "" {
		body = bytes.NewBufferString(payload)
	} else {
		body = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestEntriesRequireAuth(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp, err := http.Get(server.URL + "/api/v1/entries")
	if err != nil {
		t.Fatalf("GET /entries: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401 without auth, got %d", resp.StatusCode)
	}
}

func TestInvalidToken(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "GET", server.URL+"/api/v1/entries", "bad_token", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401 with invalid token, got %d", resp.StatusCode)
	}
}

func TestGuidedQuestionsSequence(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	// With no answers yet the low-feeling follow-up stays hidden.
	resp := doJSON(t, "POST", server.URL+"/api/v1/guided/questions", "test_mira_token", `{"answers":{}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	initial := questionIDsFromBody(t, body)
	if contains(initial, "low_mood_note") {
		t.Error("low_mood_note should be hidden before feeling_scale is answered")
	}

	// A low feeling score reveals it.
	resp = doJSON(t, "POST", server.URL+"/api/v1/guided/questions", "test_mira_token",
		`{"answers":{"feeling_scale":3}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	after := questionIDsFromBody(t, body)
	if !contains(after, "low_mood_note") {
		t.Error("low_mood_note should be visible for feeling_scale 3")
	}
}

func questionIDsFromBody(t *testing.T, body map[string]interface{}) []string {
	t.Helper()
	raw, ok := body["questions"].([]interface{})
	if !ok {
		t.Fatalf("expected questions array, got %T", body["questions"])
	}
	var ids []string
	for _, item := range raw {
		q := item.(map[string]interface{})
		ids = append(ids, q["id"].(string))
	}
	return ids
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func guidedPayload() string {
	return `{"fields":{
		"feeling_scale": "7",
		"emotions": "[\"calm\", \"grateful\"]",
		"day_summary": "a quiet day of steady work",
		"slept_well": "yes",
		"exercised": "No",
		"gratitude": "morning coffee on the balcony"
	}}`
}

func TestCreateGuidedEntry(t *testing.T) {
	server, database, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/guided", "test_mira_token", guidedPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	entryID, ok := body["id"].(string)
	if !ok || !strings.HasPrefix(entryID, "ent_") {
		t.Fatalf("expected ent_ prefixed id, got %v", body["id"])
	}

	rec, err := database.GetEntry("mira", entryID)
	if err != nil {
		t.Fatalf("loading entry: %v", err)
	}
	if rec == nil {
		t.Fatal("entry not stored")
	}
	if rec.Feeling == nil || *rec.Feeling != 7 {
		t.Errorf("expected denormalized feeling 7, got %v", rec.Feeling)
	}

	tags, err := database.GetTags(entryID)
	if err != nil {
		t.Fatalf("loading tags: %v", err)
	}
	var emotions []string
	for _, tag := range tags {
		if tag.Kind == db.TagEmotion {
			emotions = append(emotions, tag.Tag)
		}
	}
	if len(emotions) != 2 {
		t.Errorf("expected 2 emotion tags, got %v", emotions)
	}
}

func TestGetGuidedEntryIncludesAnswers(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/guided", "test_mira_token", guidedPayload())
	body := decodeBody(t, resp)
	entryID := body["id"].(string)

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries/"+entryID, "test_mira_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)

	raw, ok := body["answers"].([]interface{})
	if !ok {
		t.Fatalf("expected answers array on guided detail view, got %T", body["answers"])
	}
	answers := make(map[string]interface{}, len(raw))
	for _, item := range raw {
		a := item.(map[string]interface{})
		answers[a["question_id"].(string)] = a["value"]
	}

	if answers["feeling_scale"] != float64(7) {
		t.Errorf("expected feeling_scale answer 7, got %v", answers["feeling_scale"])
	}
	if answers["slept_well"] != true {
		t.Errorf("expected slept_well answer true, got %v", answers["slept_well"])
	}
	emotions, ok := answers["emotions"].([]interface{})
	if !ok || len(emotions) != 2 {
		t.Errorf("expected 2 emotions in answer, got %v", answers["emotions"])
	}

	// Quick entries carry no answers.
	resp = doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"just a note"}`)
	body = decodeBody(t, resp)
	quickID := body["id"].(string)

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries/"+quickID, "test_mira_token", "")
	body = decodeBody(t, resp)
	if body["answers"] != nil {
		t.Errorf("expected no answers on a quick entry, got %v", body["answers"])
	}
}

func TestCreateGuidedEntryMissingRequired(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	payload := `{"fields":{"emotions": "[\"calm\"]"}}`
	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/guided", "test_mira_token", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["field"] != "day_summary" {
		t.Errorf("expected offending field day_summary, got %v", body["field"])
	}
}

func TestCreateQuickEntry(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	payload := `{"text":"long walk by the river","feeling":8,"emotions":["calm"],"tags":["health"]}`
	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["id"] == nil {
		t.Error("expected id in response")
	}
}

func TestCreateQuickEntryRejectsEmptyText(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token", `{"text":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for blank text, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["field"] != "text" {
		t.Errorf("expected offending field text, got %v", body["field"])
	}
}

func TestCreateQuickEntryRejectsOutOfRangeFeeling(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"ok day","feeling":12}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for feeling 12, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListEntriesScopedToActor(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"mira's note"}`)
	resp.Body.Close()
	resp = doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_theo_token",
		`{"text":"theo's note"}`)
	resp.Body.Close()

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries", "test_mira_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("expected 1 entry for mira, got %v", body["count"])
	}
}

func TestListEntriesFilters(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	for i := 0; i < 3; i++ {
		resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
			fmt.Sprintf(`{"text":"note %d","tags":["work"]}`, i))
		resp.Body.Close()
	}
	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"off the clock"}`)
	resp.Body.Close()

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries?tag=work", "test_mira_token", "")
	body := decodeBody(t, resp)
	if body["count"] != float64(3) {
		t.Errorf("expected 3 work entries, got %v", body["count"])
	}

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries?q=clock", "test_mira_token", "")
	body = decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("expected 1 match for q=clock, got %v", body["count"])
	}

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries?limit=2", "test_mira_token", "")
	body = decodeBody(t, resp)
	if body["count"] != float64(2) {
		t.Errorf("expected limit to cap at 2, got %v", body["count"])
	}

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries?type=banana", "test_mira_token", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad type, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGetAndDeleteEntry(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"to be deleted"}`)
	body := decodeBody(t, resp)
	entryID := body["id"].(string)

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries/"+entryID, "test_mira_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 on get, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Another actor cannot see or delete it.
	resp = doJSON(t, "GET", server.URL+"/api/v1/entries/"+entryID, "test_theo_token", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for foreign actor, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "DELETE", server.URL+"/api/v1/entries/"+entryID, "test_theo_token", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 deleting foreign entry, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "DELETE", server.URL+"/api/v1/entries/"+entryID, "test_mira_token", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 on delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", server.URL+"/api/v1/entries/"+entryID, "test_mira_token", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversation(t *testing.T) {
	gen := &stubGenerator{reply: "you seem steadier this week"}
	server, database, cleanup := setupTestServer(t, gen)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"felt calm after the walk","feeling":8}`)
	resp.Body.Close()

	resp = doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_mira_token",
		`{"question":"how was my week?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	if body["response"] != "you seem steadier this week" {
		t.Errorf("unexpected response: %v", body["response"])
	}
	convID, ok := body["id"].(string)
	if !ok || !strings.HasPrefix(convID, "cnv_") {
		t.Errorf("expected cnv_ prefixed id, got %v", body["id"])
	}

	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 generate call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "felt calm after the walk") {
		t.Error("prompt should include the entry content")
	}

	// The attempt is recorded in the audit log either way.
	rec, err := database.GetConversation(convID)
	if err != nil {
		t.Fatalf("reading conversation log: %v", err)
	}
	if rec == nil {
		t.Fatal("conversation attempt not logged")
	}
	if rec.Status != "ok" {
		t.Errorf("expected logged status ok, got %q", rec.Status)
	}
	if rec.EntryCount != 1 {
		t.Errorf("expected entry count 1, got %d", rec.EntryCount)
	}
}

func TestConversationNoEntries(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_mira_token",
		`{"question":"anything there?"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 with no entries, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationBackendDown(t *testing.T) {
	gen := &stubGenerator{err: fault.NewUnavailable("backend timeout", nil)}
	server, _, cleanup := setupTestServer(t, gen)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"an entry"}`)
	resp.Body.Close()

	resp = doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_mira_token",
		`{"question":"how am I doing?"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 when all candidates fail, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationFatalBackendError(t *testing.T) {
	gen := &stubGenerator{err: fault.NewUpstream("authentication rejected", nil)}
	server, _, cleanup := setupTestServer(t, gen)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"an entry"}`)
	resp.Body.Close()

	resp = doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_mira_token",
		`{"question":"how am I doing?"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502 on fatal backend error, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if msg, _ := body["error"].(string); strings.Contains(msg, "authentication") {
		t.Errorf("backend detail leaked to client: %q", msg)
	}
}

func TestConversationRateLimit(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"an entry"}`)
	resp.Body.Close()

	var last int
	for i := 0; i < 11; i++ {
		resp = doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_mira_token",
			`{"question":"again?"}`)
		last = resp.StatusCode
		resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after exceeding the budget, got %d", last)
	}

	// The other actor has their own budget.
	resp = doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_theo_token",
		`{"text":"an entry"}`)
	resp.Body.Close()
	resp = doJSON(t, "POST", server.URL+"/api/v1/ai/conversation", "test_theo_token",
		`{"question":"still fine?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for the other actor, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMoodInsightsEmpty(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "GET", server.URL+"/api/v1/insights/mood", "test_mira_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	days, ok := body["days"].([]interface{})
	if !ok {
		t.Fatalf("expected days array, got %T", body["days"])
	}
	if len(days) != 0 {
		t.Errorf("expected no days without entries, got %d", len(days))
	}

	resp = doJSON(t, "GET", server.URL+"/api/v1/insights/mood?days=0", "test_mira_token", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for days=0, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMoodInsightsAggregatesToday(t *testing.T) {
	server, _, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp := doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"good morning","feeling":8,"emotions":["calm"]}`)
	resp.Body.Close()
	resp = doJSON(t, "POST", server.URL+"/api/v1/entries/quick", "test_mira_token",
		`{"text":"good evening","feeling":6,"emotions":["calm","tired"]}`)
	resp.Body.Close()

	resp = doJSON(t, "GET", server.URL+"/api/v1/insights/mood?days=7", "test_mira_token", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	days, _ := body["days"].([]interface{})
	if len(days) != 1 {
		t.Fatalf("expected 1 aggregated day, got %d", len(days))
	}
	day := days[0].(map[string]interface{})
	if day["entry_count"] != float64(2) {
		t.Errorf("expected entry_count 2, got %v", day["entry_count"])
	}
	if day["avg_feeling"] != float64(7) {
		t.Errorf("expected avg_feeling 7, got %v", day["avg_feeling"])
	}
}
