package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/example/meeting-coordinator/internal/persistence"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if want != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestObserveStoreOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveStoreOperation("meetings", "list", nil, 10*time.Millisecond)
	c.ObserveStoreOperation("meetings", "list", nil, 20*time.Millisecond)
	c.ObserveStoreOperation("messages", "list", fmt.Errorf("wrap: %w", persistence.ErrMissingIndex), time.Millisecond)
	c.ObserveStoreOperation("meetings", "delete", persistence.ErrNotFound, time.Millisecond)
	c.ObserveStoreOperation("meetings", "update", errors.New("boom"), time.Millisecond)

	tests := []struct {
		labels map[string]string
		want   float64
	}{
		{map[string]string{"collection": "meetings", "operation": "list", "outcome": "ok"}, 2},
		{map[string]string{"collection": "messages", "operation": "list", "outcome": "missing_index"}, 1},
		{map[string]string{"collection": "meetings", "operation": "delete", "outcome": "not_found"}, 1},
		{map[string]string{"collection": "meetings", "operation": "update", "outcome": "error"}, 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "coordinator_store_operations_total", tt.labels)
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("%v = %v, want %v", tt.labels, got, tt.want)
		}
	}

	h := findMetric(t, reg, "coordinator_store_operation_seconds", map[string]string{"collection": "meetings", "operation": "list"})
	if h.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("expected 2 latency samples, got %d", h.GetHistogram().GetSampleCount())
	}
}

func TestDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStatusTransition("scheduled", "in-progress")
	c.RecordAssignmentChange("assign")
	c.RecordAssignmentChange("assign")
	c.RecordOptimisticRollback("assignments")
	c.RecordDecodeFailure()
	c.RecordChatMessage("phrase")
	c.RecordChatRejected("forbidden")
	c.RecordHTTPRequest(http.MethodGet, "/meetings", http.StatusOK, time.Millisecond)

	if v := findMetric(t, reg, "coordinator_meeting_transitions_total", map[string]string{"from": "scheduled", "to": "in-progress"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("transitions = %v, want 1", v)
	}
	if v := findMetric(t, reg, "coordinator_assignment_changes_total", map[string]string{"action": "assign"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("assignment changes = %v, want 2", v)
	}
	if v := findMetric(t, reg, "coordinator_optimistic_rollbacks_total", map[string]string{"field": "assignments"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("rollbacks = %v, want 1", v)
	}
	if v := findMetric(t, reg, "coordinator_assignment_decode_failures_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("decode failures = %v, want 1", v)
	}
	if v := findMetric(t, reg, "coordinator_chat_messages_total", map[string]string{"kind": "phrase"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("chat messages = %v, want 1", v)
	}
	if v := findMetric(t, reg, "coordinator_chat_rejected_total", map[string]string{"reason": "forbidden"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("chat rejected = %v, want 1", v)
	}
	if v := findMetric(t, reg, "coordinator_http_requests_total", map[string]string{"route": "/meetings", "status_code": "200"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("http requests = %v, want 1", v)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordChatMessage("text")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "coordinator_chat_messages_total") {
		t.Fatalf("response should contain coordinator_chat_messages_total")
	}
}
