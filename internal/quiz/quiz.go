// Package quiz serves the educational quizzes and tracks a user's progress.
package quiz

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"marketdash/internal/store"
)

//go:embed quizzes.yaml
var builtin []byte

type Question struct {
	Question      string   `yaml:"question" json:"question"`
	Options       []string `yaml:"options" json:"options"`
	CorrectAnswer int      `yaml:"correct_answer" json:"correctAnswer"`
	Explanation   string   `yaml:"explanation" json:"explanation"`
}

type Quiz struct {
	Title      string     `yaml:"title" json:"title"`
	Difficulty string     `yaml:"difficulty" json:"difficulty"`
	Questions  []Question `yaml:"questions" json:"questions"`
}

// ParseCatalog decodes a YAML list of quizzes. Every quiz needs at least one
// question and every correct answer must index into its options.
func ParseCatalog(b []byte) ([]Quiz, error) {
	var quizzes []Quiz
	if err := yaml.Unmarshal(b, &quizzes); err != nil {
		return nil, fmt.Errorf("parse quizzes: %w", err)
	}
	for i, q := range quizzes {
		if len(q.Questions) == 0 {
			return nil, fmt.Errorf("quiz %d (%s): no questions", i, q.Title)
		}
		for j, qq := range q.Questions {
			if qq.CorrectAnswer < 0 || qq.CorrectAnswer >= len(qq.Options) {
				return nil, fmt.Errorf("quiz %d question %d: correct answer %d out of range", i, j, qq.CorrectAnswer)
			}
		}
	}
	return quizzes, nil
}

// Catalog returns the built-in quizzes.
func Catalog() []Quiz {
	quizzes, err := ParseCatalog(builtin)
	if err != nil {
		panic(err)
	}
	return quizzes
}

var (
	ErrNoQuiz        = errors.New("no quiz selected")
	ErrQuizNotFound  = errors.New("quiz not found")
	ErrUnknownAction = errors.New("unknown quiz action")
)

// Progress is a user's position in a quiz.
type Progress struct {
	SelectedQuiz    *int `json:"selectedQuiz"`
	CurrentQuestion int  `json:"currentQuestion"`
	SelectedAnswer  *int `json:"selectedAnswer"`
	ShowExplanation bool `json:"showExplanation"`
	Score           int  `json:"score"`
	Completed       bool `json:"completed"`
}

// Start selects quiz index and clears all progress.
func (p *Progress) Start(catalog []Quiz, index int) error {
	if index < 0 || index >= len(catalog) {
		return fmt.Errorf("%w: %d", ErrQuizNotFound, index)
	}
	*p = Progress{SelectedQuiz: &index}
	return nil
}

func (p *Progress) quiz(catalog []Quiz) (Quiz, error) {
	if p.SelectedQuiz == nil || *p.SelectedQuiz < 0 || *p.SelectedQuiz >= len(catalog) {
		return Quiz{}, ErrNoQuiz
	}
	return catalog[*p.SelectedQuiz], nil
}

// Answer records the choice for the current question. It is a no-op once the
// explanation is showing or the quiz is completed.
func (p *Progress) Answer(catalog []Quiz, answer int) error {
	q, err := p.quiz(catalog)
	if err != nil {
		return err
	}
	if p.ShowExplanation || p.Completed || p.CurrentQuestion >= len(q.Questions) {
		return nil
	}
	p.SelectedAnswer = &answer
	p.ShowExplanation = true
	if answer == q.Questions[p.CurrentQuestion].CorrectAnswer {
		p.Score++
	}
	return nil
}

// Next advances to the following question, or completes the quiz after the last one.
func (p *Progress) Next(catalog []Quiz) error {
	q, err := p.quiz(catalog)
	if err != nil {
		return err
	}
	if p.CurrentQuestion < len(q.Questions)-1 {
		p.CurrentQuestion++
		p.SelectedAnswer = nil
		p.ShowExplanation = false
		return nil
	}
	p.Completed = true
	return nil
}

// Reset returns to quiz selection.
func (p *Progress) Reset() {
	*p = Progress{}
}

const recordName = "quiz_progress"

// Tracker persists progress per user.
type Tracker struct {
	records store.Records
	catalog []Quiz
}

func NewTracker(records store.Records, catalog []Quiz) *Tracker {
	return &Tracker{records: records, catalog: catalog}
}

func (t *Tracker) Catalog() []Quiz { return t.catalog }

// Load returns the saved progress, or empty progress when none is saved.
func (t *Tracker) Load(ctx context.Context, user string) (Progress, error) {
	var p Progress
	if _, err := t.records.Load(ctx, store.Key(user, recordName), &p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Action names accepted by Apply.
const (
	ActionStart  = "start"
	ActionAnswer = "answer"
	ActionNext   = "next"
	ActionReset  = "reset"
)

// Apply loads the user's progress, runs action and saves the result. value is
// the quiz index for start and the answer index for answer.
func (t *Tracker) Apply(ctx context.Context, user, action string, value int) (Progress, error) {
	p, err := t.Load(ctx, user)
	if err != nil {
		return Progress{}, err
	}
	switch action {
	case ActionStart:
		err = p.Start(t.catalog, value)
	case ActionAnswer:
		err = p.Answer(t.catalog, value)
	case ActionNext:
		err = p.Next(t.catalog)
	case ActionReset:
		p.Reset()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		return Progress{}, err
	}
	if err := t.records.Save(ctx, store.Key(user, recordName), p); err != nil {
		return Progress{}, fmt.Errorf("save progress: %w", err)
	}
	return p, nil
}
