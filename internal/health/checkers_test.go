package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveKitChecker_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"200", http.StatusOK, false},
		{"204", http.StatusNoContent, false},
		{"404", http.StatusNotFound, true},
		{"503", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewLiveKitChecker(server.URL).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("status %d: got err=%v, wantErr=%v", tt.status, err, tt.wantErr)
			}
		})
	}
}

func TestLiveKitChecker_EmptyURL(t *testing.T) {
	if err := NewLiveKitChecker("").HealthCheck(context.Background()); err == nil {
		t.Error("expected an error for an unconfigured url")
	}
}

func TestLiveKitChecker_WebSocketScheme(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://livekit.local:7880", "http://livekit.local:7880"},
		{"wss://livekit.example.com", "https://livekit.example.com"},
		{"https://livekit.example.com", "https://livekit.example.com"},
	}
	for _, tt := range tests {
		if got := NewLiveKitChecker(tt.in).url; got != tt.want {
			t.Errorf("NewLiveKitChecker(%q).url = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLiveKitChecker_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLiveKitChecker(server.URL).HealthCheck(ctx); err == nil {
		t.Error("expected an error for a canceled context")
	}
}

func TestLiveKitChecker_UnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := NewLiveKitChecker(server.URL).HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected an error for a closed server")
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("expected an unreachable error, got %v", err)
	}
}
