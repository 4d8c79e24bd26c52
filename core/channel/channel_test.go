package channel

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m3rciful/propbot/core/dialog"
)

func TestDoMapsStatusToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = io.WriteString(w, "fine")
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, strings.Repeat("x", 2*maxErrorBody))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ok", nil)
	if err := Do(srv.Client(), "meta", req); err != nil {
		t.Fatalf("Do(ok): %v", err)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/limited", nil)
	err := Do(srv.Client(), "meta", req)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || len(apiErr.Body) != maxErrorBody {
		t.Fatalf("unexpected api error status=%d body_len=%d", apiErr.Status, len(apiErr.Body))
	}
	if !strings.HasPrefix(apiErr.Error(), "meta: api error: ") || !strings.HasSuffix(apiErr.Error(), "(429)") {
		t.Fatalf("Error() = %q", apiErr.Error())
	}
}

func TestAcceptAndResult(t *testing.T) {
	var msgs []Message
	msgs = Accept(msgs, Message{Sender: " 91 ", Text: "  hi "})
	msgs = Accept(msgs, Message{Sender: "", Text: "orphan"})
	msgs = Accept(msgs, Message{Sender: "92", Text: "   "})
	msgs = Accept(msgs, Message{Sender: "93", Text: "Rent Property", Kind: KindSelection})

	if len(msgs) != 2 {
		t.Fatalf("accepted %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != "91" || msgs[0].Text != "hi" || msgs[0].Kind != KindText {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Kind != KindSelection {
		t.Fatalf("selection kind lost: %+v", msgs[1])
	}

	if _, err := Result(nil); !errors.Is(err, ErrNotUserMessage) {
		t.Fatalf("Result(nil) err = %v", err)
	}
	if got, err := Result(msgs); err != nil || len(got) != 2 {
		t.Fatalf("Result = %v, %v", got, err)
	}
}

func TestNumberedAndClip(t *testing.T) {
	d := dialog.Choice("91", "Pick one:", "Buy Property", "Rent Property")
	want := "Pick one:\n\n1. Buy Property\n2. Rent Property"
	if got := Numbered(d); got != want {
		t.Fatalf("Numbered = %q, want %q", got, want)
	}
	if got := Numbered(dialog.Plain("91", "plain")); got != "plain" {
		t.Fatalf("Numbered(plain) = %q", got)
	}
	if got := ClipRunes("Schedule Viewing now", 8); got != "Schedule" {
		t.Fatalf("ClipRunes = %q", got)
	}
	if got := ClipRunes("ok", 8); got != "ok" {
		t.Fatalf("ClipRunes(short) = %q", got)
	}
}
