package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavelanni/cloudhire/internal/llm/prompts"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/scoring"
)

const gradingReply = `{
  "multipleChoice": {"mc1": {"score": 1, "feedback": "ok", "isCorrect": true}},
  "concepts": {"c1": {"score": 14, "feedback": "great", "strengths": ["depth"], "improvements": []}},
  "calculations": {"calc1": {"score": 8, "numericalScore": 4, "explanationScore": 9, "workShown": true,
    "detailedFeedback": {"approach": "a", "calculation": "b", "presentation": "c"}}},
  "overallSummary": {"overallScore": 88, "hiringRecommendation": "Hire", "recommendedLevel": "Mid-Level",
    "keyStrengths": ["statics"], "areasForImprovement": ["units"], "detailedAnalysis": "solid"}
}`

// fakeOpenAI serves chat completions with the given content and records the
// last request body.
func fakeOpenAI(t *testing.T, status int, content string, lastBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if lastBody != nil {
			*lastBody = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id": "x", "object": "chat.completion", "model": "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIComplete(t *testing.T) {
	var body string
	srv := fakeOpenAI(t, http.StatusOK, `{"ok":true}`, &body)
	c := NewOpenAI(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "test-model", Temperature: 0.2})

	got, err := c.Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(body, `"json_object"`) || !strings.Contains(body, `"test-model"`) {
		t.Errorf("request body missing json format or model: %s", body)
	}
	if c.Model() != "test-model" {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestNewProviderSelection(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty config: expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(ctx, Config{Provider: "anthropic"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("anthropic without key: expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(ctx, Config{Provider: "gemini"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("gemini without key: expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(ctx, Config{Provider: "llama"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	c, err := New(ctx, Config{Provider: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	if c.Model() != anthropicDefaultModel {
		t.Errorf("default model = %q", c.Model())
	}
}

type flakyCompleter struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakyCompleter) Model() string { return "flaky" }

func (f *flakyCompleter) Complete(context.Context, string, string) (string, error) {
	if f.calls.Add(1) <= f.failures {
		return "", f.err
	}
	return "{}", nil
}

func TestWithRetry(t *testing.T) {
	t.Run("recovers from transient errors", func(t *testing.T) {
		f := &flakyCompleter{failures: 2, err: errors.New("503 temporarily unavailable")}
		c := WithRetry(f, 3, time.Millisecond, 5*time.Millisecond)
		if _, err := c.Complete(context.Background(), "", ""); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if f.calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", f.calls.Load())
		}
	})

	t.Run("gives up on permanent errors", func(t *testing.T) {
		f := &flakyCompleter{failures: 10, err: errors.New("invalid api key")}
		c := WithRetry(f, 3, time.Millisecond, 5*time.Millisecond)
		if _, err := c.Complete(context.Background(), "", ""); err == nil {
			t.Fatal("expected error")
		}
		if f.calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", f.calls.Load())
		}
	})

	t.Run("stops after max retries", func(t *testing.T) {
		f := &flakyCompleter{failures: 10, err: errors.New("rate limit exceeded")}
		c := WithRetry(f, 2, time.Millisecond, 2*time.Millisecond)
		if _, err := c.Complete(context.Background(), "", ""); err == nil {
			t.Fatal("expected error")
		}
		if f.calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", f.calls.Load())
		}
	})

	t.Run("server errors from the API are retried", func(t *testing.T) {
		srv := fakeOpenAI(t, http.StatusBadGateway, "", nil)
		c := WithRetry(NewOpenAI(Config{BaseURL: srv.URL + "/v1", APIKey: "k"}), 1, time.Millisecond, time.Millisecond)
		_, err := c.Complete(context.Background(), "", "")
		if err == nil || !strings.Contains(err.Error(), "after retries") {
			t.Errorf("expected retried failure, got %v", err)
		}
	})
}

func TestWithRateLimitHonoursContext(t *testing.T) {
	f := &flakyCompleter{}
	c := WithRateLimit(f, 0.001, 1)
	if _, err := c.Complete(context.Background(), "", ""); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "", ""); err == nil {
		t.Error("expected rate limit error once the bucket is empty")
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":{\"b\":2}}\nThanks", `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.in); got != tt.want {
				t.Errorf("CleanJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseGradingRejectsIncomplete(t *testing.T) {
	for _, raw := range []string{"not json", `{"multipleChoice":{}}`, `[]`} {
		if _, err := ParseGrading(raw); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ParseGrading(%q): expected ErrMalformedResponse, got %v", raw, err)
		}
	}
}

func gradeRequest() scoring.GradeRequest {
	answers := model.NewAnswerSet()
	answers.MultipleChoice["mc1"] = "A"
	return scoring.GradeRequest{
		Candidate: model.Candidate{FirstName: "Kim", Position: "Analyst"},
		Questions: []model.Question{
			{Key: "mc1", Section: model.SectionMultipleChoice, Text: "Pick", CorrectAnswer: "A"},
			{Key: "c1", Section: model.SectionConcept, Text: "Explain"},
			{Key: "calc1", Section: model.SectionCalculation, Text: "Compute", CorrectAnswer: "3"},
		},
		Answers: answers,
		Assessment: model.OverallAssessment{
			OverallScore:   65,
			Recommendation: model.Recommendation{Tier: model.TierModerate},
		},
	}
}

func TestGraderGrade(t *testing.T) {
	var body string
	srv := fakeOpenAI(t, http.StatusOK, "```json\n"+gradingReply+"\n```", &body)
	g, err := NewGrader(NewOpenAI(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m"}), prompts.PromptStandard)
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	res, err := g.Grade(context.Background(), gradeRequest())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.Grader != "llm:m" {
		t.Errorf("grader = %q", res.Grader)
	}
	if !res.MultipleChoice["mc1"].IsCorrect {
		t.Error("mc1 should be correct")
	}
	if res.Concepts["c1"].Score != 10 {
		t.Errorf("concept score should be clamped to 10, got %v", res.Concepts["c1"].Score)
	}
	if res.Calculations["calc1"].ExplanationScore != 6 {
		t.Errorf("explanation score should be clamped to 6, got %v", res.Calculations["calc1"].ExplanationScore)
	}
	if res.Summary.HiringRecommendation != model.Hire || res.Summary.OverallScore != 88 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if !strings.Contains(body, "Kim") || !strings.Contains(body, "Compute") {
		t.Error("prompt should describe the candidate and questions")
	}
}

func TestGraderFallsBackOnBadReply(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusOK, "I cannot grade this.", nil)
	g, err := NewGrader(NewOpenAI(Config{BaseURL: srv.URL + "/v1", APIKey: "k"}), prompts.PromptLenient)
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	var fellBack bool
	chain := scoring.WithFallback(g, scoring.HeuristicGrader{}, func(err error) {
		fellBack = errors.Is(err, ErrMalformedResponse)
	})
	res, err := chain.Grade(context.Background(), gradeRequest())
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !fellBack || res.Grader != "heuristic" {
		t.Errorf("expected heuristic fallback, got grader %q (fellBack=%v)", res.Grader, fellBack)
	}
}

func TestNormalizeFillsHiringRecommendation(t *testing.T) {
	res := &model.GradingResult{Summary: model.GradingSummary{HiringRecommendation: "Definitely", OverallScore: 140}}
	normalize(res, model.OverallAssessment{Recommendation: model.Recommendation{Tier: model.TierReview}})
	if res.Summary.HiringRecommendation != model.HireNo {
		t.Errorf("hiring = %q, want No Hire", res.Summary.HiringRecommendation)
	}
	if res.Summary.OverallScore != 100 {
		t.Errorf("overall = %v, want 100", res.Summary.OverallScore)
	}
	if res.MultipleChoice == nil || res.Concepts == nil || res.Calculations == nil {
		t.Error("maps should be allocated")
	}
}
