package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/cloudhire/internal/model"
)

func TestCounters(t *testing.T) {
	m := New()
	m.SubmissionReceived()
	m.SubmissionReceived()
	m.ReportGenerated(model.TierStrong)
	m.GraderOutcome(GraderFallback)
	m.EmailSent("report", nil)
	m.EmailSent("report", errors.New("boom"))
	m.PipelineDone(model.StatusReported, 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("Strong Candidate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.graderOutcomes.WithLabelValues(GraderFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("report", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.pipelineDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SubmissionReceived()
		m.ReportGenerated(model.TierReview)
		m.GraderOutcome(GraderLLM)
		m.PipelineDone(model.StatusNeedsReview, time.Second)
		m.EmailSent("invite", nil)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.SubmissionReceived()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "cloudhire_submissions_total 1"))
	assert.Contains(t, string(body), "go_goroutines")
}
