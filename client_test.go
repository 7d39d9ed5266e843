package omnisource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["session_id"] != "sess-1" || req["message"] != "how many reviews?" {
			t.Errorf("request = %v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResult{
			TurnID: "t-1",
			Answer: "There are 42 reviews.",
			Citations: []Citation{{
				Source:  "structured",
				Locator: Locator{Table: "social_listening", Row: "1"},
				Label:   "Table social_listening",
			}},
			Route:     []string{"structured"},
			LatencyMS: 120,
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := client.Chat(context.Background(), "sess-1", "how many reviews?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.TurnID != "t-1" || len(result.Citations) != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Citations[0].Locator.Table != "social_listening" {
		t.Errorf("locator = %+v", result.Citations[0].Locator)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "invalid_input",
			"message": "invalid input",
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Chat(context.Background(), "", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "invalid_input" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["turn_id"] != "t-1" || req["rating"] != float64(-1) {
			t.Errorf("request = %v", req)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Feedback(context.Background(), "sess-1", "t-1", -1); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
}

func TestAnalyticsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(UsageSummary{
			TotalTurns:   10,
			ByRoute:      map[string]int64{"both": 4},
			AvgLatencyMS: 210,
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := client.AnalyticsSummary(context.Background())
	if err != nil {
		t.Fatalf("AnalyticsSummary: %v", err)
	}
	if summary.TotalTurns != 10 || summary.ByRoute["both"] != 4 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestHealthDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status: "degraded",
			Checks: map[string]string{"database": "error"},
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status.Status != "degraded" || status.Checks["database"] != "error" {
		t.Errorf("status = %+v", status)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
