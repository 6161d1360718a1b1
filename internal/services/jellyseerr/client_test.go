package jellyseerr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestFetchUserMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/user" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("take") != "100" {
			t.Errorf("expected take=100, got %q", r.URL.Query().Get("take"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[
			{"avatar":"https://plex.tv/users/707f3dfacb151965/avatar?c=123","plexUsername":"alice","displayName":"Alice"},
			{"avatar":"https://plex.tv/users/a1b2c3d4e5f60708/avatar","plexUsername":"","displayName":"Bob"},
			{"avatar":"https://gravatar.com/avatar/abc","plexUsername":"charlie","displayName":"Charlie"},
			{"avatar":"https://plex.tv/users/ffff000011112222/avatar","plexUsername":"","displayName":""}
		]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", 5*time.Second, quietLogger())
	mapping := client.FetchUserMapping(context.Background())

	if len(mapping) != 3 {
		t.Fatalf("expected 3 mapped users, got %d: %v", len(mapping), mapping)
	}
	if mapping["707f3dfacb151965"] != "alice" {
		t.Errorf("expected plexUsername to win, got %q", mapping["707f3dfacb151965"])
	}
	if mapping["a1b2c3d4e5f60708"] != "Bob" {
		t.Errorf("expected displayName fallback, got %q", mapping["a1b2c3d4e5f60708"])
	}
	if mapping["ffff000011112222"] != "unknown" {
		t.Errorf("expected unknown fallback, got %q", mapping["ffff000011112222"])
	}
}

func TestFetchUserMappingServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", 5*time.Second, quietLogger())
	mapping := client.FetchUserMapping(context.Background())
	if len(mapping) != 0 {
		t.Errorf("expected empty map on server error, got %v", mapping)
	}
}

func TestFetchUserMappingUnconfigured(t *testing.T) {
	client := NewClient("", "", 5*time.Second, quietLogger())
	mapping := client.FetchUserMapping(context.Background())
	if len(mapping) != 0 {
		t.Errorf("expected empty map when unconfigured, got %v", mapping)
	}
}
