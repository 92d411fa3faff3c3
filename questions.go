/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
)

const optionsPerQuestion = 4

// Question is immutable once handed to a room.
type Question struct {
	Text                string   `json:"question"`
	Options             []string `json:"options"`
	Answer              string   `json:"answer"`
	ImageURL            string   `json:"imageUrl,omitempty"`
	IllustrationCaption string   `json:"illustrationCaption,omitempty"`
}

// UnmarshalJSON also accepts the illustrationTexte key used by older
// question files.
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	var aux struct {
		plain
		IllustrationTexte string `json:"illustrationTexte"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*q = Question(aux.plain)
	if q.IllustrationCaption == "" {
		q.IllustrationCaption = aux.IllustrationTexte
	}
	return nil
}

func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(q.Options) != optionsPerQuestion {
		return fmt.Errorf("question %q has %d options, want %d", q.Text, len(q.Options), optionsPerQuestion)
	}
	for _, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("question %q has an empty option", q.Text)
		}
	}
	if !slices.Contains(q.Options, q.Answer) {
		return fmt.Errorf("question %q: answer %q is not one of its options", q.Text, q.Answer)
	}
	return nil
}

// QuestionProvider materializes the question batch for a game. It returns
// exactly count questions or an error wrapping ErrProvider.
type QuestionProvider interface {
	FetchQuestions(ctx context.Context, count int) ([]Question, error)
}

var defaultQuestions = []Question{
	{
		Text:    "What is the capital of Canada?",
		Options: []string{"Ottawa", "Toronto", "Montreal", "Vancouver"},
		Answer:  "Ottawa",
	},
	{
		Text:    "Which country is famous for the Eiffel Tower?",
		Options: []string{"France", "Italy", "Spain", "Belgium"},
		Answer:  "France",
	},
	{
		Text:    "How many continents are there?",
		Options: []string{"Five", "Six", "Seven", "Eight"},
		Answer:  "Seven",
	},
	{
		Text:    "Which planet is known as the Red Planet?",
		Options: []string{"Venus", "Mars", "Jupiter", "Mercury"},
		Answer:  "Mars",
	},
}

type questionFile struct {
	Questions []Question `json:"questions"`
}

// loadQuestions reads either a bare JSON array of questions or an object
// with a "questions" array. Every question must validate.
func loadQuestions(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return parseQuestions(data)
}

func parseQuestions(data []byte) ([]Question, error) {
	var questions []Question

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("parsing questions: %w", err)
		}
	} else {
		var f questionFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing questions: %w", err)
		}
		questions = f.Questions
	}

	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	return questions, nil
}

// StaticProvider serves questions from an in-memory pool.
type StaticProvider struct {
	mu   sync.Mutex
	pool []Question
	rng  *rand.Rand
}

func NewStaticProvider(pool []Question) *StaticProvider {
	if len(pool) == 0 {
		pool = defaultQuestions
	}

	return &StaticProvider{
		pool: slices.Clone(pool),
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// FetchQuestions returns count questions in random order. A pool smaller
// than count is cycled, so a question may repeat within one game.
func (p *StaticProvider) FetchQuestions(ctx context.Context, count int) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: invalid question count %d", ErrProvider, count)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pool) == 0 {
		return nil, fmt.Errorf("%w: question pool is empty", ErrProvider)
	}

	order := p.rng.Perm(len(p.pool))

	out := make([]Question, count)
	for i := range out {
		q := p.pool[order[i%len(order)]]
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}

	return out, nil
}

func (p *StaticProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pool)
}
