package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notifyhub/eventdesk/internal/provider"
)

func TestHTTPMailer_Send(t *testing.T) {
	var got provider.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing api key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"msg-1","status":"accepted"}`))
	}))
	defer srv.Close()

	m := provider.NewHTTPMailer(srv.URL, "key-1", time.Second)
	res, err := m.Send(context.Background(), provider.Message{To: "a@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MessageID != "msg-1" {
		t.Errorf("message id %q", res.MessageID)
	}
	if got.To != "a@example.com" || got.Subject != "Hi" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestHTTPSMSSender_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      bool
		wantRejected bool
	}{
		{"accepted", http.StatusOK, false, false},
		{"bad request is rejected", http.StatusBadRequest, true, true},
		{"rate limited is transient", http.StatusTooManyRequests, true, false},
		{"server error is transient", http.StatusBadGateway, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"messageId":"sms-1"}`))
			}))
			defer srv.Close()

			s := provider.NewHTTPSMSSender(srv.URL, "", time.Second)
			_, err := s.Send(context.Background(), "+15550001", "hello")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if errors.Is(err, provider.ErrRejected) != tc.wantRejected {
				t.Errorf("rejected = %v, want %v", errors.Is(err, provider.ErrRejected), tc.wantRejected)
			}
		})
	}
}

func TestHTTPMailer_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := provider.NewHTTPMailer(srv.URL, "", time.Second)
	if _, err := m.Send(ctx, provider.Message{To: "a@example.com"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
