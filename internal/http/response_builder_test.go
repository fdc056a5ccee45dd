package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilderTriggers(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerLedgerChanged(2025, 7).
		BodyHTML(`<span>ok</span>`).
		Write(rr)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var triggers map[string]map[string]int64
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("invalid HX-Trigger: %v", err)
	}
	if got := triggers["ledger:changed"]; got["year"] != 2025 || got["revision"] != 7 {
		t.Fatalf("unexpected trigger data %v", got)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html content type")
	}
}

func TestErrorResponseEscapes(t *testing.T) {
	rr := httptest.NewRecorder()
	UnprocessableEntityError(`<b>bad</b>`).Write(rr)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "<b>") {
		t.Fatalf("message not escaped: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
		t.Fatalf("expected error notification trigger")
	}
}
