package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/cloudhire/internal/model"
)

func TestParseAnswerSet(t *testing.T) {
	got, err := ParseAnswerSet([]byte(`{
		"multipleChoice": {"mc-q1": "Carbon Fiber"},
		"concepts": {"c-1": "Stress concentration"},
		"calculations": {"load-calc-answer": "12", "load-calc-explanation": "F = 3 * 4"},
		"behavioral": {"b1": "Led a migration"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Carbon Fiber", got.MultipleChoice["mc-q1"])
	assert.Equal(t, "Stress concentration", got.Concepts["c-1"])
	assert.Equal(t, "12", got.CalcAnswerFor("load-calc"))
	assert.Equal(t, "F = 3 * 4", got.CalcExplanationFor("load-calc"))
	assert.Equal(t, "Led a migration", got.Behavioral["b1"])
}

func TestParseAnswerSetEmpty(t *testing.T) {
	for _, in := range []string{"", "  ", "{}", `{"multipleChoice":null}`} {
		got, err := ParseAnswerSet([]byte(in))
		require.NoError(t, err, in)
		assert.Empty(t, got.MultipleChoice)
		assert.NotNil(t, got.Calculations)
	}
}

func TestParseAnswerSetInvalid(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		field string
	}{
		{"array root", `[1,2]`, "answers"},
		{"string section", `{"concepts":"nope"}`, "concepts"},
		{"array section", `{"multipleChoice":["a"]}`, "multipleChoice"},
		{"number value", `{"concepts":{"c1":3}}`, "concepts"},
		{"bad calc field", `{"calculations":{"1-result":"3"}}`, "calculations"},
		{"calc key without field", `{"calculations":{"answer":"3"}}`, "calculations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnswerSet([]byte(tt.in))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCalcKeyJSONMapKey(t *testing.T) {
	a := model.NewAnswerSet()
	a.SetCalc("q-7", model.CalcExplanation, "shown")
	a.SetCalc("q-7", model.CalcAnswer, "3.5")

	got := MustParseAnswerSet(`{"calculations":{"q-7-answer":"3.5","q-7-explanation":"shown"}}`)
	assert.Equal(t, a.Calculations, got.Calculations)
}
