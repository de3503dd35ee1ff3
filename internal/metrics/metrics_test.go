package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "github.com/aiengineer/rageval/internal/pkg/errors"
)

func TestRecordEvaluation(t *testing.T) {
	m := New()

	m.RecordEvaluation(3, 10*time.Millisecond, nil)
	m.RecordEvaluation(2, time.Millisecond, nil)
	m.RecordEvaluation(4, time.Millisecond, apperrors.ValidationError("bad k"))
	m.RecordEvaluation(1, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.Evaluations.WithLabelValues("ok")); got != 2 {
		t.Errorf("evaluations{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Evaluations.WithLabelValues(apperrors.CodeValidation)); got != 1 {
		t.Errorf("evaluations{VALIDATION_ERROR} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Evaluations.WithLabelValues(apperrors.CodeInternal)); got != 1 {
		t.Errorf("evaluations{INTERNAL_ERROR} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EvaluatedQueries); got != 5 {
		t.Errorf("evaluated queries = %v, want 5", got)
	}
}

func TestRecordBusPublish(t *testing.T) {
	m := New()

	m.RecordBusPublish("evaluation.completed", time.Millisecond, nil)
	m.RecordBusPublish("evaluation.completed", time.Millisecond, errors.New("broker down"))

	if got := testutil.ToFloat64(m.BusEventsPublished.WithLabelValues("evaluation.completed")); got != 1 {
		t.Errorf("published = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BusErrors.WithLabelValues("evaluation.completed")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordEvaluation(1, 0, nil)

	if got := testutil.ToFloat64(b.Evaluations.WithLabelValues("ok")); got != 0 {
		t.Errorf("second instance saw %v evaluations, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordEvaluation(2, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`rageval_evaluations_total{status="ok"} 1`,
		"rageval_evaluated_queries_total 2",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
