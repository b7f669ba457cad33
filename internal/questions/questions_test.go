package questions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/store"
)

const sampleCSV = `ID,question,type,category,difficulty,points,options,correct_answer
1,"Which material has the highest specific stiffness?",multipleChoice,Materials,Easy,1,Aluminum|Steel|Carbon Fiber,Carbon Fiber
2,"Explain buckling, briefly.",concepts,Structures,Medium,10
3,Compute the load,calculations,Structures,Hard,10,,1250
short,row
`

const sampleYAML = `
- section: multiple_choice
  text: Pick one
  options: [A, B, C]
  correct_answer: B
- key: shear
  section: concept
  text: Describe shear flow
  points: 10
- section: behavioral
  text: Tell us about a conflict
`

func TestParseCSV(t *testing.T) {
	qs, err := Parse("Questions.csv", []byte(sampleCSV))
	require.NoError(t, err)
	require.Len(t, qs, 3)

	assert.Equal(t, "mc1", qs[0].Key)
	assert.Equal(t, model.SectionMultipleChoice, qs[0].Section)
	assert.Equal(t, []string{"Aluminum", "Steel", "Carbon Fiber"}, qs[0].Options)
	assert.Equal(t, "Carbon Fiber", qs[0].CorrectAnswer)

	assert.Equal(t, "c2", qs[1].Key)
	assert.Equal(t, "Explain buckling, briefly.", qs[1].Text)
	assert.Equal(t, 10, qs[1].Points)

	assert.Equal(t, "calc3", qs[2].Key)
	assert.Empty(t, qs[2].Options)
	assert.Equal(t, "1250", qs[2].CorrectAnswer)
}

func TestParseYAMLAssignsKeys(t *testing.T) {
	qs, err := Parse("bank.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, "mc1", qs[0].Key)
	assert.Equal(t, "shear", qs[1].Key)
	assert.Equal(t, "b1", qs[2].Key)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{"unknown extension", "bank.txt", "[]"},
		{"bad json", "bank.json", "{"},
		{"missing text", "bank.json", `[{"section":"concept"}]`},
		{"unknown section", "bank.json", `[{"section":"essay","text":"x"}]`},
		{"single option", "bank.json", `[{"section":"multiple_choice","text":"x","options":["A"]}]`},
		{"duplicate key", "bank.json", `[{"key":"a","section":"concept","text":"x"},{"key":"a","section":"concept","text":"y"}]`},
		{"unknown csv type", "bank.csv", "ID,question,type,category,difficulty,points\n1,q,essay,c,d,1\n"},
		{"bad csv points", "bank.csv", "ID,question,type,category,difficulty,points\n1,q,concepts,c,d,many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.filename, []byte(tt.data))
			assert.Error(t, err)
		})
	}

	_, err := Parse("bank.txt", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestImportSkipsKnownFiles(t *testing.T) {
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := Import(s, "Questions.csv", []byte(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Import(s, "copy.csv", []byte(sampleCSV))
	require.NoError(t, err)
	assert.Zero(t, n, "same content should not be imported twice")

	count, err := s.QuestionCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	q, err := s.GetQuestionByKey("calc3")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, model.SectionCalculation, q.Section)
}
