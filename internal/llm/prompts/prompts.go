package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/cloudhire/internal/model"
)

//go:embed templates/*.txt
var FS embed.FS

var (
	candidateAnswerRegex    = regexp.MustCompile(`(?i)</?\s*candidate-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict holds senior or core-discipline roles to a professional standard.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards approach over polish for entry-level roles.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// MCItem is a multiple-choice question with the candidate's answer.
type MCItem struct {
	Number     int
	Key        string
	Text       string
	Difficulty string
	Options    string
	Answer     string
	Expected   string
}

// ConceptItem is a concept question with the candidate's answer.
type ConceptItem struct {
	Number     int
	Key        string
	Text       string
	Difficulty string
	Answer     string
}

// CalcItem is a calculation question with both halves of the answer.
type CalcItem struct {
	Number      int
	Key         string
	Text        string
	Difficulty  string
	Answer      string
	Explanation string
	Expected    string
}

// BehavioralItem is an unscored behavioral question and answer.
type BehavioralItem struct {
	Text   string
	Answer string
}

// GradeData holds template data for the grading prompt.
type GradeData struct {
	CandidateName  string
	Position       string
	Experience     string
	Education      string
	ResumeText     string
	CompletionRate float64
	TimeEfficiency model.TimeEfficiency
	ElapsedMinutes int
	MultipleChoice []MCItem
	Concepts       []ConceptItem
	Calculations   []CalcItem
	Behavioral     []BehavioralItem
}

// Load parses the grading templates from fsys. Each variant is the common
// body plus the variant's "guidance" block. Loading happens once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)

		common, err := fs.ReadFile(fsys, "templates/grade_common.txt")
		if err != nil {
			loadErr = fmt.Errorf("read prompt file: %w", err)
			return
		}
		for v := range validVariants {
			file := "templates/grade_" + string(v) + ".txt"
			guidance, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("grade").Parse(string(common))
			if err == nil {
				_, err = tmpl.Parse(string(guidance))
			}
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			gradeTemplates[v] = tmpl
		}
	})
	return loadErr
}

// NewGradeData collects everything the grading prompt shows about a
// submission. Candidate text is sanitized here.
func NewGradeData(c model.Candidate, questions []model.Question, answers model.AnswerSet, a model.OverallAssessment, resume string) GradeData {
	d := GradeData{
		CandidateName:  c.FullName(),
		Position:       c.Position,
		Experience:     orNA(c.Experience),
		Education:      orNA(c.Education),
		CompletionRate: a.CompletionRate,
		TimeEfficiency: a.TimeEfficiency,
		ElapsedMinutes: a.ElapsedSeconds / 60,
	}
	if strings.TrimSpace(resume) != "" {
		d.ResumeText = sanitizeAnswer(resume)
	}
	for i, q := range questions {
		n := i + 1
		switch q.Section {
		case model.SectionMultipleChoice:
			opts := "N/A"
			if len(q.Options) > 0 {
				opts = strings.Join(q.Options, ", ")
			}
			d.MultipleChoice = append(d.MultipleChoice, MCItem{
				Number: n, Key: q.Key, Text: q.Text, Difficulty: q.Difficulty, Options: opts,
				Answer: sanitizeAnswer(answers.MultipleChoice[q.Key]), Expected: q.CorrectAnswer,
			})
		case model.SectionConcept:
			d.Concepts = append(d.Concepts, ConceptItem{
				Number: n, Key: q.Key, Text: q.Text, Difficulty: q.Difficulty,
				Answer: sanitizeAnswer(answers.Concepts[q.Key]),
			})
		case model.SectionCalculation:
			d.Calculations = append(d.Calculations, CalcItem{
				Number: n, Key: q.Key, Text: q.Text, Difficulty: q.Difficulty,
				Answer:      sanitizeAnswer(answers.CalcAnswerFor(q.Key)),
				Explanation: sanitizeAnswer(answers.CalcExplanationFor(q.Key)),
				Expected:    q.CorrectAnswer,
			})
		case model.SectionBehavioral:
			if ans := answers.Behavioral[q.Key]; strings.TrimSpace(ans) != "" {
				d.Behavioral = append(d.Behavioral, BehavioralItem{Text: q.Text, Answer: sanitizeAnswer(ans)})
			}
		}
	}
	return d
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// BuildGradePrompt renders the grading prompt using the specified variant.
func BuildGradePrompt(variant PromptVariant, data GradeData) (string, error) {
	if gradeTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = candidateAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
