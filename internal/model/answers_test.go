package model

import (
	"encoding/json"
	"testing"
)

func TestParseCalcKey(t *testing.T) {
	tests := []struct {
		in      string
		want    CalcKey
		wantErr bool
	}{
		{in: "1-answer", want: CalcKey{QuestionID: "1", Field: CalcAnswer}},
		{in: "load-calc-explanation", want: CalcKey{QuestionID: "load-calc", Field: CalcExplanation}},
		{in: "answer", wantErr: true},
		{in: "-answer", wantErr: true},
		{in: "1-", wantErr: true},
		{in: "1-notes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCalcKey(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCalcKey(%q): expected error, got %+v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCalcKey(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCalcKey(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestAnswerSetJSONKeys(t *testing.T) {
	a := NewAnswerSet()
	a.SetCalc("q1", CalcAnswer, "7")

	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["calculations"]["q1-answer"] != "7" {
		t.Errorf("calculations = %v, want q1-answer key", raw["calculations"])
	}

	var bad AnswerSet
	if err := json.Unmarshal([]byte(`{"calculations":{"q1-total":"7"}}`), &bad); err == nil {
		t.Error("expected error for unknown calculation field")
	}
}
