package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func mustPayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return payload
}

func TestExtractTelegramID(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int64
		ok   bool
	}{
		{"flat telegram_id", `{"telegram_id": 42}`, 42, true},
		{"flat chat_id", `{"chat_id": 42}`, 42, true},
		{"flat user_id", `{"user_id": 42}`, 42, true},
		{"nested under data", `{"data": {"telegram_id": 42}}`, 42, true},
		{"nested under data.user", `{"data": {"user": {"id": 42}}}`, 42, true},
		{"numeric string", `{"data": {"telegram_id": "99"}}`, 99, true},
		{"padded numeric string", `{"telegram_id": " 99 "}`, 99, true},
		{"first path wins", `{"telegram_id": 1, "user_id": 2}`, 1, true},
		{"missing", `{"data": {}}`, 0, false},
		{"non-numeric string", `{"telegram_id": "abc"}`, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTelegramID(mustPayload(t, tc.raw))
			if tc.ok {
				if got == nil || *got != tc.want {
					t.Errorf("got %v, want %d", got, tc.want)
				}
			} else if got != nil {
				t.Errorf("expected no id, got %d", *got)
			}
		})
	}
}

func TestExtractUsername(t *testing.T) {
	if got := extractUsername(mustPayload(t, `{"data": {"user": {"username": "  alice "}}}`)); got == nil || *got != "alice" {
		t.Errorf("expected trimmed alice, got %v", got)
	}
	if got := extractUsername(mustPayload(t, `{"data": {"username": ""}}`)); got != nil {
		t.Errorf("blank username must yield nil, got %q", *got)
	}
}

func TestExtractChatID_FallsBackToTelegramID(t *testing.T) {
	if got := extractChatID(mustPayload(t, `{"telegram_id": 42}`), 42); got != 42 {
		t.Errorf("expected fallback 42, got %d", got)
	}
	if got := extractChatID(mustPayload(t, `{"data": {"chat_id": "77"}}`), 42); got != 77 {
		t.Errorf("expected 77, got %d", got)
	}
}

func TestNormalizeEvent(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		raw       string
		want      webhookEvent
	}{
		{"legacy completed", "sub_completed", `{}`, eventCompleted},
		{"canonical completed", "subscription_completed", `{}`, eventCompleted},
		{"canonical aborted", "subscription_aborted", `{}`, eventAborted},
		{"status abort", "new_status", `{"data": {"status": "abort"}}`, eventAborted},
		{"status other", "new_status", `{"data": {"status": "active"}}`, eventUnknown},
		{"status missing", "new_status", `{}`, eventUnknown},
		{"unknown type", "payout", `{}`, eventUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeEvent(tc.eventType, mustPayload(t, tc.raw)); got != tc.want {
				t.Errorf("normalizeEvent(%q) = %d, want %d", tc.eventType, got, tc.want)
			}
		})
	}
}

// The provider retries on anything but the fixed success body, so even garbage
// must be acknowledged.
func TestWebhookAlwaysAcknowledges(t *testing.T) {
	h := NewWebhookHandler(context.Background(), nil, nil, nil)
	app := fiber.New()
	SetupWebhookRoutes(app, h)

	cases := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{not json`},
		{"test probe", `{"type": "test"}`},
		{"missing telegram id", `{"type": "sub_completed", "data": {}}`},
		{"unknown event type", `{"type": "payout", "telegram_id": 42}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/flyer_webhook", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != 200 {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			var out map[string]bool
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatalf("bad response body %q: %v", body, err)
			}
			if !out["status"] {
				t.Errorf("expected {\"status\": true}, got %s", body)
			}
		})
	}
}
