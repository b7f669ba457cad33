package model

import (
	"fmt"
	"strings"
)

// CalcField selects which half of a calculation answer a value belongs to.
type CalcField string

const (
	CalcAnswer      CalcField = "answer"
	CalcExplanation CalcField = "explanation"
)

// CalcKey addresses one field of a calculation question. Its text form is
// "<questionID>-answer" or "<questionID>-explanation".
type CalcKey struct {
	QuestionID string
	Field      CalcField
}

// String returns the text form of k.
func (k CalcKey) String() string {
	return k.QuestionID + "-" + string(k.Field)
}

// ParseCalcKey parses the text form of a calculation key.
func ParseCalcKey(s string) (CalcKey, error) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return CalcKey{}, fmt.Errorf("calculation key %q: want <question>-answer or <question>-explanation", s)
	}
	k := CalcKey{QuestionID: s[:i], Field: CalcField(s[i+1:])}
	if k.Field != CalcAnswer && k.Field != CalcExplanation {
		return CalcKey{}, fmt.Errorf("calculation key %q: unknown field %q", s, k.Field)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler so CalcKey can key JSON maps.
func (k CalcKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CalcKey) UnmarshalText(b []byte) error {
	parsed, err := ParseCalcKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AnswerSet is the raw set of answers of one submission, by section.
type AnswerSet struct {
	MultipleChoice map[string]string  `json:"multipleChoice"`
	Concepts       map[string]string  `json:"concepts"`
	Calculations   map[CalcKey]string `json:"calculations"`
	Behavioral     map[string]string  `json:"behavioral,omitempty"`
}

// NewAnswerSet returns an AnswerSet with all maps allocated.
func NewAnswerSet() AnswerSet {
	return AnswerSet{
		MultipleChoice: map[string]string{},
		Concepts:       map[string]string{},
		Calculations:   map[CalcKey]string{},
		Behavioral:     map[string]string{},
	}
}

// CalcAnswerFor returns the numeric answer text for a calculation question.
func (a AnswerSet) CalcAnswerFor(questionID string) string {
	return a.Calculations[CalcKey{QuestionID: questionID, Field: CalcAnswer}]
}

// CalcExplanationFor returns the explanation text for a calculation question.
func (a AnswerSet) CalcExplanationFor(questionID string) string {
	return a.Calculations[CalcKey{QuestionID: questionID, Field: CalcExplanation}]
}

// SetCalc stores one field of a calculation answer.
func (a *AnswerSet) SetCalc(questionID string, field CalcField, value string) {
	if a.Calculations == nil {
		a.Calculations = map[CalcKey]string{}
	}
	a.Calculations[CalcKey{QuestionID: questionID, Field: field}] = value
}
