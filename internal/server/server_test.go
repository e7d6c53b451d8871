package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeUsers struct {
	count int
	err   error
}

func (f fakeUsers) Count(ctx context.Context) (int, error) {
	return f.count, f.err
}

type fakeBot struct {
	username string
	ready    bool
	uptime   time.Duration
}

func (f fakeBot) Username() string      { return f.username }
func (f fakeBot) Ready() bool           { return f.ready }
func (f fakeBot) Uptime() time.Duration { return f.uptime }

func TestStatus(t *testing.T) {
	tests := []struct {
		name         string
		users        fakeUsers
		bot          fakeBot
		wantCode     int
		wantUsername string
	}{
		{
			name:         "connected",
			users:        fakeUsers{count: 42},
			bot:          fakeBot{username: "caos", ready: true, uptime: 1500 * time.Millisecond},
			wantCode:     http.StatusOK,
			wantUsername: "caos",
		},
		{
			name:         "before ready",
			users:        fakeUsers{count: 0},
			wantCode:     http.StatusOK,
			wantUsername: notConnected,
		},
		{
			name:     "store failure",
			users:    fakeUsers{err: errors.New("db down")},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(":0", tt.users, tt.bot)
			srv.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

			rec := httptest.NewRecorder()
			srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if tt.wantCode != http.StatusOK {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["error"] == "" {
					t.Error("missing error field")
				}
				return
			}

			var body statusResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "online" {
				t.Errorf("status = %q, want online", body.Status)
			}
			if body.Timestamp != "2024-05-01T12:00:00Z" {
				t.Errorf("timestamp = %q", body.Timestamp)
			}
			if body.UserCount != tt.users.count {
				t.Errorf("userCount = %d, want %d", body.UserCount, tt.users.count)
			}
			if body.BotUsername != tt.wantUsername {
				t.Errorf("botUsername = %q, want %q", body.BotUsername, tt.wantUsername)
			}
			if body.Uptime != tt.bot.uptime.Milliseconds() {
				t.Errorf("uptime = %d, want %d", body.Uptime, tt.bot.uptime.Milliseconds())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name        string
		users       fakeUsers
		bot         fakeBot
		wantCode    int
		wantDiscord string
		wantStore   string
	}{
		{
			name:        "healthy",
			bot:         fakeBot{ready: true},
			wantCode:    http.StatusOK,
			wantDiscord: "connected",
			wantStore:   "ok",
		},
		{
			name:        "gateway down",
			wantCode:    http.StatusServiceUnavailable,
			wantDiscord: "disconnected",
			wantStore:   "ok",
		},
		{
			name:        "store down",
			users:       fakeUsers{err: errors.New("db down")},
			bot:         fakeBot{ready: true},
			wantCode:    http.StatusServiceUnavailable,
			wantDiscord: "connected",
			wantStore:   "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(":0", tt.users, tt.bot)
			rec := httptest.NewRecorder()
			srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Discord != tt.wantDiscord || body.Store != tt.wantStore {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestUnknownPath(t *testing.T) {
	srv := New(":0", fakeUsers{}, fakeBot{})
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}

type stalledUsers struct{}

func (stalledUsers) Count(ctx context.Context) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestHealthStalledStore(t *testing.T) {
	srv := New(":0", stalledUsers{}, fakeBot{ready: true})
	srv.countTimeout = 20 * time.Millisecond

	start := time.Now()
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("health took %v with a stalled store", elapsed)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Store != context.DeadlineExceeded.Error() {
		t.Errorf("store = %q, want %q", body.Store, context.DeadlineExceeded.Error())
	}
}
