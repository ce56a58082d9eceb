package userdir

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/user-1"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"result":{"fullName":"Alice Nguyen","username":"alice","email":"alice@example.com"}}`))
		case strings.HasSuffix(r.URL.Path, "/missing"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, newTestLogger())
	ctx := context.Background()

	profile, err := client.Lookup(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if profile.FullName != "Alice Nguyen" {
		t.Errorf("fullName = %q, want Alice Nguyen", profile.FullName)
	}

	if _, err := client.Lookup(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrUserNotFound", err)
	}
	if _, err := client.Lookup(ctx, "broken"); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Errorf("Lookup(broken) error = %v, want ErrDirectoryUnavailable", err)
	}
}

func TestPublicProfileDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile PublicProfile
		want    string
	}{
		{"full name wins", PublicProfile{FullName: "Alice Nguyen", Username: "alice", Email: "a@x.io"}, "Alice Nguyen"},
		{"username next", PublicProfile{Username: "alice", Email: "a@x.io"}, "alice"},
		{"email last", PublicProfile{Email: "a@x.io"}, "a@x.io"},
		{"empty", PublicProfile{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDisplayName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/user-1") {
			w.Write([]byte(`{"result":{"fullName":"Alice Nguyen"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, newTestLogger())
	ctx := context.Background()

	if got := client.ResolveDisplayName(ctx, "user-1", "Preferred Name"); got != "Preferred Name" {
		t.Errorf("preferred name ignored, got %q", got)
	}
	if got := client.ResolveDisplayName(ctx, "user-1", "  "); got != "Alice Nguyen" {
		t.Errorf("directory name = %q, want Alice Nguyen", got)
	}
	if got := client.ResolveDisplayName(ctx, "unknown-user", ""); got != "unknown-user" {
		t.Errorf("fallback to user id = %q, want unknown-user", got)
	}
	if got := client.ResolveDisplayName(ctx, "", ""); !strings.HasPrefix(got, "user_") {
		t.Errorf("anonymous fallback = %q, want user_<timestamp>", got)
	}
}

func TestResolveDisplayNameDirectoryDown(t *testing.T) {
	// Point at a closed server so every lookup fails.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, newTestLogger())

	if got := client.ResolveDisplayName(context.Background(), "user-1", ""); got != "user-1" {
		t.Errorf("degraded resolution = %q, want user-1", got)
	}
}
