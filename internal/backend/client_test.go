package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientPaths(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		got = append(got, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", time.Second)
	ctx := context.Background()
	calls := []func() error{
		func() error { return c.StartRide(ctx, "r1") },
		func() error { return c.StartRequest(ctx, "q1") },
		func() error { return c.CompleteRequest(ctx, "q1") },
		func() error { return c.CompleteRide(ctx, "r1") },
		func() error { return c.CancelRequest(ctx, "q2") },
	}
	for _, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("call: %v", err)
		}
	}
	want := []string{"/rides/r1/start", "/requests/q1/start", "/requests/q1/complete", "/rides/r1/complete", "/requests/q2/cancel"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: want %s got %s", i, want[i], got[i])
		}
	}
}

func TestClientStructuredError(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID string
	}{
		{"nested", `{"error":{"id":"DRIVER_TOO_FAR_FROM_DESTINATION","message":"too far"}}`, ErrIDTooFarFromDropoff},
		{"flat", `{"id":"RIDE_HAS_ACTIVE_REQUESTS","message":"open requests"}`, ErrIDActiveRequests},
		{"plain", `internal error`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "", time.Second).CompleteRide(context.Background(), "r1")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != http.StatusUnprocessableEntity || ErrorID(err) != tt.wantID {
				t.Fatalf("unexpected error: %+v", apiErr)
			}
		})
	}
}

func TestClientEmptyID(t *testing.T) {
	if err := NewClient("http://127.0.0.1:1", "", time.Second).StartRide(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
