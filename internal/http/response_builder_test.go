package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fundportal/internal/core"

	"github.com/google/go-cmp/cmp"
)

func decodeTriggers(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	raw := w.Header().Get("HX-Trigger")
	if raw == "" {
		t.Fatal("HX-Trigger header not set")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v (%s)", err, raw)
	}
	return got
}

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		BodyHTML("<p>ok</p>").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger set without triggers")
	}
}

func TestHTMXResponseBuilder_DomainTriggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerDemandChanged(core.Demand{ID: 4, WorkID: 9, Status: core.DemandApproved}).
		TriggerWorkAssigned(core.Work{ID: 9, VendorID: 2, Version: 3}).
		TriggerWorksChanged().
		TriggerMastersChanged(core.KindTax).
		TriggerBudgetChanged("2024-25").
		TriggerFormReset().
		Write(w)

	got := decodeTriggers(t, w)
	want := map[string]any{
		"demand:changed":  map[string]any{"id": float64(4), "work_id": float64(9), "status": "Approved"},
		"work:assigned":   map[string]any{"work_id": float64(9), "vendor_id": float64(2), "version": float64(3)},
		"works:changed":   map[string]any{},
		"masters:changed": map[string]any{"kind": string(core.KindTax)},
		"budget:changed":  map[string]any{"fy": "2024-25"},
		"form:reset":      map[string]any{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("triggers mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMXResponseBuilder_Notifications(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*HTMXResponseBuilder) *HTMXResponseBuilder
		wantType string
		wantMs   float64
	}{
		{"success", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerSuccessNotification("saved") }, "success", 3000},
		{"error", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("saved") }, "error", 5000},
		{"warning", func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
			return b.TriggerNotification(NotificationWarning, "saved", 1000)
		}, "warning", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build(NewHTMXResponse()).Write(w)
			n, ok := decodeTriggers(t, w)["show-notification"].(map[string]any)
			if !ok {
				t.Fatal("show-notification trigger missing")
			}
			if n["type"] != tt.wantType || n["message"] != "saved" || n["duration"] != tt.wantMs {
				t.Errorf("notification = %v", n)
			}
		})
	}
}

func TestHTMXResponseBuilder_RedirectAndHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Redirect("/dashboard").
		Header("X-Custom", "value").
		Status(http.StatusNoContent).
		Write(w)

	if got := w.Header().Get("HX-Redirect"); got != "/dashboard" {
		t.Errorf("HX-Redirect = %q", got)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantBody string
	}{
		{"unprocessable", http.StatusUnprocessableEntity, "remark is required", `<div class="error">remark is required</div>`},
		{"escapes markup", http.StatusBadRequest, `<script>alert("x")</script>`, `<div class="error">&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</div>`},
		{"too many requests", http.StatusTooManyRequests, "slow down", `<div class="error">slow down</div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorResponse(tt.status, tt.message).Write(w)

			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()
	SuccessResponse("Demand DM-1 & co submitted").Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d", w.Code)
	}
	if want := `<div class="success">Demand DM-1 &amp; co submitted</div>`; w.Body.String() != want {
		t.Errorf("Body = %q, want %q", w.Body.String(), want)
	}
	n, _ := decodeTriggers(t, w)["show-notification"].(map[string]any)
	if n["message"] != "Demand DM-1 & co submitted" {
		t.Errorf("notification = %v", n)
	}
}
