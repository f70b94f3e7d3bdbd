package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// QuestionType enumerates the supported guided-question kinds.
type QuestionType string

const (
	TypeText         QuestionType = "text"
	TypeNumberScale  QuestionType = "number-scale"
	TypeBoolean      QuestionType = "boolean"
	TypeMultiEmotion QuestionType = "multi-select-emotion"
	TypeSingleSelect QuestionType = "single-select"
)

// Fixed question ids consumed outside the guided flow (normalization,
// mood insights).
const (
	QuestionFeelingScale = "feeling_scale"
	QuestionEmotions     = "emotions"
)

// Question is an immutable catalog entry, created at load time and
// never mutated at runtime.
type Question struct {
	ID        string       `json:"id"`
	Prompt    string       `json:"prompt"`
	Type      QuestionType `json:"type"`
	Min       float64      `json:"min,omitempty"`
	Max       float64      `json:"max,omitempty"`
	Options   []string     `json:"options,omitempty"`
	Required  bool         `json:"required,omitempty"`
	Condition string       `json:"condition,omitempty"`

	compiled    *Condition
	condInvalid bool
}

// Visible reports whether the question should be shown given the answers
// collected so far. A question with a malformed condition is never shown.
func (q *Question) Visible(answers map[string]any) bool {
	if q.condInvalid {
		return false
	}
	return q.compiled.Eval(answers)
}

// Catalog holds the guided-journal question definitions in declared
// order.
type Catalog struct {
	questions []Question
	index     map[string]int
}

// New builds a catalog from question definitions, compiling conditions
// up front. Structural problems (duplicate ids, bad ranges, unknown
// types) make the catalog unusable and are returned as errors; a
// malformed condition expression only hides its question, so one
// authoring mistake cannot take the whole form down.
func New(questions []Question) (*Catalog, error) {
	c := &Catalog{
		questions: make([]Question, len(questions)),
		index:     make(map[string]int, len(questions)),
	}

	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d: id is required", i)
		}
		if _, dup := c.index[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}

		switch q.Type {
		case TypeText, TypeBoolean, TypeMultiEmotion:
		case TypeNumberScale:
			if q.Min >= q.Max {
				return nil, fmt.Errorf("question %q: number-scale needs min < max", q.ID)
			}
		case TypeSingleSelect:
			if len(q.Options) == 0 {
				return nil, fmt.Errorf("question %q: single-select needs options", q.ID)
			}
		default:
			return nil, fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
		}

		compiled, err := CompileCondition(q.Condition)
		if err != nil {
			// Fail closed: the question is hidden until the catalog
			// author fixes the expression.
			log.Printf("catalog: question %q has a malformed condition, hiding it: %v", q.ID, err)
			q.condInvalid = true
		}
		q.compiled = compiled

		c.questions[i] = q
		c.index[q.ID] = i
	}

	return c, nil
}

// Load reads a catalog from a JSON file, or returns the built-in default
// when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	return New(questions)
}

// Questions returns the catalog entries in declared order.
func (c *Catalog) Questions() []Question {
	return c.questions
}

// Get returns the question with the given id.
func (c *Catalog) Get(id string) (*Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.questions[i], true
}

// Len returns the number of questions declared.
func (c *Catalog) Len() int {
	return len(c.questions)
}
