package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/cloudhire/internal/model"
)

// ParseAnswerSet decodes the JSON form of an answer set. Each section must be
// a JSON object of strings (or absent/null); calculation keys must be
// "<question>-answer" or "<question>-explanation". Any violation is a
// *ValidationError.
func ParseAnswerSet(data []byte) (model.AnswerSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.NewAnswerSet(), nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.AnswerSet{}, &ValidationError{Field: "answers", Reason: "not a JSON object", Err: err}
	}

	out := model.NewAnswerSet()
	sections := []struct {
		name string
		dst  map[string]string
	}{
		{"multipleChoice", out.MultipleChoice},
		{"concepts", out.Concepts},
		{"behavioral", out.Behavioral},
	}
	for _, s := range sections {
		m, err := stringMap(s.name, raw[s.name])
		if err != nil {
			return model.AnswerSet{}, err
		}
		for k, v := range m {
			s.dst[k] = v
		}
	}

	calcs, err := stringMap("calculations", raw["calculations"])
	if err != nil {
		return model.AnswerSet{}, err
	}
	for k, v := range calcs {
		key, err := model.ParseCalcKey(k)
		if err != nil {
			return model.AnswerSet{}, &ValidationError{Field: "calculations", Reason: "bad key", Err: err}
		}
		out.Calculations[key] = v
	}
	return out, nil
}

func stringMap(field string, msg json.RawMessage) (map[string]string, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil, nil
	}
	if msg[0] != '{' {
		return nil, &ValidationError{Field: field, Reason: "must be an object"}
	}
	var m map[string]string
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, &ValidationError{Field: field, Reason: "values must be strings", Err: err}
	}
	return m, nil
}

// MustParseAnswerSet is ParseAnswerSet for fixtures; it panics on error.
func MustParseAnswerSet(s string) model.AnswerSet {
	a, err := ParseAnswerSet([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("scoring: %v", err))
	}
	return a
}
