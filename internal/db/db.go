package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
-- Journal entries, quick (free text) and guided (answer-backed)
CREATE TABLE IF NOT EXISTS entries (
    entry_id TEXT PRIMARY KEY,
    actor TEXT NOT NULL,
    entry_type TEXT NOT NULL,        -- 'quick' | 'guided'
    content TEXT NOT NULL DEFAULT '',
    feeling REAL,                    -- 1..10 score, nullable
    created_at TEXT NOT NULL
);

-- Typed answers for guided entries; rows exist only for questions
-- that were visible at submission time
CREATE TABLE IF NOT EXISTS answers (
    entry_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    value TEXT NOT NULL,             -- JSON-encoded typed value
    position INTEGER NOT NULL,       -- catalog position at submission
    PRIMARY KEY (entry_id, question_id)
);

-- Emotion and category tags
CREATE TABLE IF NOT EXISTS entry_tags (
    entry_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    kind TEXT NOT NULL,              -- 'emotion' | 'category'
    PRIMARY KEY (entry_id, tag, kind)
);

-- AI conversation audit log
CREATE TABLE IF NOT EXISTS conversation_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT UNIQUE NOT NULL,
    actor TEXT NOT NULL,
    question TEXT NOT NULL,
    entry_count INTEGER NOT NULL,
    model TEXT,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Materialized per-day mood aggregates
CREATE TABLE IF NOT EXISTS mood_stats (
    actor TEXT NOT NULL,
    day TEXT NOT NULL,               -- 2006-01-02
    entry_count INTEGER NOT NULL,
    avg_feeling REAL,
    top_emotions TEXT NOT NULL,      -- JSON array
    updated_at TEXT NOT NULL,
    PRIMARY KEY (actor, day)
);

-- Scheduler job tracking per actor
CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor TEXT NOT NULL,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_entries_actor_date ON entries(actor, created_at);
CREATE INDEX IF NOT EXISTS idx_answers_entry ON answers(entry_id);
CREATE INDEX IF NOT EXISTS idx_tags_entry ON entry_tags(entry_id);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON entry_tags(tag);
CREATE INDEX IF NOT EXISTS idx_conversation_actor ON conversation_log(actor);
CREATE INDEX IF NOT EXISTS idx_scheduler_actor ON scheduler_runs(actor, job_type);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the underlying connection is still usable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// EntryRecord is a stored journal entry
type EntryRecord struct {
	EntryID   string
	Actor     string
	Type      string // "quick" | "guided"
	Content   string
	Feeling   *float64
	CreatedAt time.Time
}

// AnswerRecord is a stored guided answer, value JSON-encoded
type AnswerRecord struct {
	EntryID    string
	QuestionID string
	Value      string
	Position   int
}

// TagRecord is an emotion or category tag on an entry
type TagRecord struct {
	Tag  string
	Kind string // "emotion" | "category"
}

// Tag kinds
const (
	TagEmotion  = "emotion"
	TagCategory = "category"
)

// CreateEntry persists an entry with its answers and tags atomically:
// either all rows commit or none do.
func (db *DB) CreateEntry(entry EntryRecord, answers []AnswerRecord, tags []TagRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO entries (entry_id, actor, entry_type, content, feeling, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.EntryID, entry.Actor, entry.Type, entry.Content, nullFloat(entry.Feeling),
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	for _, a := range answers {
		_, err = tx.Exec(`
			INSERT INTO answers (entry_id, question_id, value, position)
			VALUES (?, ?, ?, ?)
		`, entry.EntryID, a.QuestionID, a.Value, a.Position)
		if err != nil {
			return fmt.Errorf("inserting answer %s: %w", a.QuestionID, err)
		}
	}

	for _, t := range tags {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO entry_tags (entry_id, tag, kind)
			VALUES (?, ?, ?)
		`, entry.EntryID, t.Tag, t.Kind)
		if err != nil {
			return fmt.Errorf("inserting tag %s: %w", t.Tag, err)
		}
	}

	return tx.Commit()
}

// GetEntry returns an entry owned by actor, or nil when it does not
// exist or belongs to someone else. The two cases are indistinguishable.
func (db *DB) GetEntry(actor, entryID string) (*EntryRecord, error) {
	var e EntryRecord
	var createdStr string
	var feeling sql.NullFloat64
	err := db.conn.QueryRow(`
		SELECT entry_id, actor, entry_type, content, feeling, created_at
		FROM entries
		WHERE entry_id = ? AND actor = ?
	`, entryID, actor).Scan(&e.EntryID, &e.Actor, &e.Type, &e.Content, &feeling, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if feeling.Valid {
		e.Feeling = &feeling.Float64
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &e, nil
}

// EntryFilter narrows ListEntries results. Content search and result
// capping happen after normalization, not here, so guided entries
// match on their assembled text.
type EntryFilter struct {
	Type string     // "quick" | "guided" | ""
	Tags []string   // entry must carry every listed tag
	From *time.Time // inclusive
	To   *time.Time // inclusive
}

// ListEntries returns the actor's entries matching the filter, oldest
// first.
func (db *DB) ListEntries(actor string, f EntryFilter) ([]EntryRecord, error) {
	query := `SELECT entry_id, actor, entry_type, content, feeling, created_at
		FROM entries WHERE actor = ?`
	args := []interface{}{actor}

	if f.Type != "" {
		query += ` AND entry_type = ?`
		args = append(args, f.Type)
	}
	if f.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	for _, tag := range f.Tags {
		query += ` AND entry_id IN (SELECT entry_id FROM entry_tags WHERE tag = ?)`
		args = append(args, tag)
	}

	query += ` ORDER BY created_at ASC`

	return db.scanEntries(query, args...)
}

// ListEntriesByID returns the actor's entries among the given ids,
// oldest first. Ids owned by someone else are silently absent from the
// result.
func (db *DB) ListEntriesByID(actor string, entryIDs []string) ([]EntryRecord, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")
	query := fmt.Sprintf(`SELECT entry_id, actor, entry_type, content, feeling, created_at
		FROM entries
		WHERE actor = ? AND entry_id IN (%s)
		ORDER BY created_at ASC`, placeholders)

	args := []interface{}{actor}
	for _, id := range entryIDs {
		args = append(args, id)
	}

	return db.scanEntries(query, args...)
}

func (db *DB) scanEntries(query string, args ...interface{}) ([]EntryRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EntryRecord
	for rows.Next() {
		var e EntryRecord
		var createdStr string
		var feeling sql.NullFloat64
		if err := rows.Scan(&e.EntryID, &e.Actor, &e.Type, &e.Content, &feeling, &createdStr); err != nil {
			return nil, err
		}
		if feeling.Valid {
			f := feeling.Float64
			e.Feeling = &f
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetAnswers returns an entry's answers in catalog order.
func (db *DB) GetAnswers(entryID string) ([]AnswerRecord, error) {
	rows, err := db.conn.Query(`
		SELECT entry_id, question_id, value, position
		FROM answers
		WHERE entry_id = ?
		ORDER BY position ASC
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []AnswerRecord
	for rows.Next() {
		var a AnswerRecord
		if err := rows.Scan(&a.EntryID, &a.QuestionID, &a.Value, &a.Position); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// GetAnswersForEntries returns answers for many entries keyed by entry
// id, each in catalog order.
func (db *DB) GetAnswersForEntries(entryIDs []string) (map[string][]AnswerRecord, error) {
	result := make(map[string][]AnswerRecord)
	if len(entryIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")
	args := make([]interface{}, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}

	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT entry_id, question_id, value, position
		FROM answers
		WHERE entry_id IN (%s)
		ORDER BY entry_id, position ASC
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a AnswerRecord
		if err := rows.Scan(&a.EntryID, &a.QuestionID, &a.Value, &a.Position); err != nil {
			return nil, err
		}
		result[a.EntryID] = append(result[a.EntryID], a)
	}
	return result, rows.Err()
}

// GetTags returns an entry's tags.
func (db *DB) GetTags(entryID string) ([]TagRecord, error) {
	rows, err := db.conn.Query(`
		SELECT tag, kind FROM entry_tags WHERE entry_id = ? ORDER BY kind, tag
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []TagRecord
	for rows.Next() {
		var t TagRecord
		if err := rows.Scan(&t.Tag, &t.Kind); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// GetTagsForEntries returns tags for many entries keyed by entry id.
func (db *DB) GetTagsForEntries(entryIDs []string) (map[string][]TagRecord, error) {
	result := make(map[string][]TagRecord)
	if len(entryIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")
	args := make([]interface{}, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}

	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT entry_id, tag, kind FROM entry_tags WHERE entry_id IN (%s) ORDER BY kind, tag
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entryID string
		var t TagRecord
		if err := rows.Scan(&entryID, &t.Tag, &t.Kind); err != nil {
			return nil, err
		}
		result[entryID] = append(result[entryID], t)
	}
	return result, rows.Err()
}

// DeleteEntry removes an entry with its answers and tags in one
// transaction. Returns false when the entry does not exist for this
// actor.
func (db *DB) DeleteEntry(actor, entryID string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM entries WHERE entry_id = ? AND actor = ?`, entryID, actor)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`DELETE FROM answers WHERE entry_id = ?`, entryID); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// LogConversation records an AI conversation attempt for auditing.
func (db *DB) LogConversation(conversationID, actor, question string, entryCount int, model, status string) error {
	_, err := db.conn.Exec(`
		INSERT INTO conversation_log (conversation_id, actor, question, entry_count, model, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conversationID, actor, question, entryCount, model, status, time.Now().UTC().Format(time.RFC3339))
	return err
}

// ConversationRecord is one audited AI conversation attempt.
type ConversationRecord struct {
	ConversationID string
	Actor          string
	Question       string
	EntryCount     int
	Model          string
	Status         string
}

// GetConversation reads an audit row by conversation id, nil if absent.
func (db *DB) GetConversation(conversationID string) (*ConversationRecord, error) {
	var c ConversationRecord
	err := db.conn.QueryRow(`
		SELECT conversation_id, actor, question, entry_count, model, status
		FROM conversation_log WHERE conversation_id = ?
	`, conversationID).Scan(&c.ConversationID, &c.Actor, &c.Question, &c.EntryCount, &c.Model, &c.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MoodStatRecord is a materialized per-day mood aggregate
type MoodStatRecord struct {
	Actor       string
	Day         string
	EntryCount  int
	AvgFeeling  *float64
	TopEmotions string // JSON array
}

// UpsertMoodStat writes a per-day aggregate row.
func (db *DB) UpsertMoodStat(s MoodStatRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.conn.Exec(`
		INSERT INTO mood_stats (actor, day, entry_count, avg_feeling, top_emotions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor, day) DO UPDATE SET
			entry_count = ?,
			avg_feeling = ?,
			top_emotions = ?,
			updated_at = ?
	`, s.Actor, s.Day, s.EntryCount, nullFloat(s.AvgFeeling), s.TopEmotions, now,
		s.EntryCount, nullFloat(s.AvgFeeling), s.TopEmotions, now)
	return err
}

// GetMoodStats returns an actor's daily aggregates from a day onwards,
// oldest first.
func (db *DB) GetMoodStats(actor, sinceDay string) ([]MoodStatRecord, error) {
	rows, err := db.conn.Query(`
		SELECT actor, day, entry_count, avg_feeling, top_emotions
		FROM mood_stats
		WHERE actor = ? AND day >= ?
		ORDER BY day ASC
	`, actor, sinceDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MoodStatRecord
	for rows.Next() {
		var s MoodStatRecord
		var avg sql.NullFloat64
		if err := rows.Scan(&s.Actor, &s.Day, &s.EntryCount, &avg, &s.TopEmotions); err != nil {
			return nil, err
		}
		if avg.Valid {
			f := avg.Float64
			s.AvgFeeling = &f
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SchedulerRun tracks a scheduler job execution
type SchedulerRun struct {
	ID           int64
	Actor        string
	JobType      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// StartSchedulerRun records the start of a scheduler job
func (db *DB) StartSchedulerRun(actor, jobType string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO scheduler_runs (actor, job_type, status, started_at)
		VALUES (?, ?, 'running', ?)
	`, actor, jobType, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedulerRun marks a scheduler job as completed
func (db *DB) CompleteSchedulerRun(runID int64, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	_, err := db.conn.Exec(`
		UPDATE scheduler_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), errMsg, runID)
	return err
}

// GetLastSchedulerRun returns the last run for an actor and job type
func (db *DB) GetLastSchedulerRun(actor, jobType string) (*SchedulerRun, error) {
	var run SchedulerRun
	var startedStr string
	var completedStr, errMsg sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, actor, job_type, status, started_at, completed_at, error_message
		FROM scheduler_runs
		WHERE actor = ? AND job_type = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, actor, jobType).Scan(&run.ID, &run.Actor, &run.JobType, &run.Status, &startedStr, &completedStr, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedStr)
	if completedStr.Valid {
		t, _ := time.Parse(time.RFC3339, completedStr.String)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
