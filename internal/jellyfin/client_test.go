package jellyfin

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPing_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/System/Info" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Emby-Token"); got != "test-key" {
			t.Errorf("X-Emby-Token = %q, want %q", got, "test-key")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ServerName":"Test Jellyfin","Version":"10.9.2","Id":"jf-001"}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "test-key", srv.Client(), testLogger())
	info, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if info.Version != "10.9.2" {
		t.Errorf("Version = %q, want %q", info.Version, "10.9.2")
	}
}

func TestPing_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "bad-key", srv.Client(), testLogger())
	if _, err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error for unauthorized")
	}
}

func TestMediaFolders_PreservesServerOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Library/MediaFolders" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Items":[
				{"Id":"lib-2","Name":"Shows","CollectionType":"tvshows"},
				{"Id":"lib-1","Name":"Movies","CollectionType":"movies"},
				{"Id":"lib-3","Name":"Music","CollectionType":"music"}
			],
			"TotalRecordCount":3
		}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "key", srv.Client(), testLogger())
	folders, err := c.MediaFolders(context.Background())
	if err != nil {
		t.Fatalf("MediaFolders failed: %v", err)
	}
	want := []string{"Shows", "Movies", "Music"}
	if len(folders) != len(want) {
		t.Fatalf("got %d folders, want %d", len(folders), len(want))
	}
	for i, name := range want {
		if folders[i].Name != name {
			t.Errorf("folders[%d].Name = %q, want %q", i, folders[i].Name, name)
		}
	}
}

func TestCountItems_QueryParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"TotalRecordCount":120}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "key", srv.Client(), testLogger())

	count, err := c.CountItems(context.Background(), "lib-1", false)
	if err != nil {
		t.Fatalf("CountItems failed: %v", err)
	}
	if count != 120 {
		t.Errorf("count = %d, want 120", count)
	}
	if got := gotQuery["ParentId"]; len(got) != 1 || got[0] != "lib-1" {
		t.Errorf("ParentId = %v, want [lib-1]", got)
	}
	if got := gotQuery["Limit"]; len(got) != 1 || got[0] != "0" {
		t.Errorf("Limit = %v, want [0]", got)
	}
	if got := gotQuery["Recursive"]; len(got) != 1 || got[0] != "true" {
		t.Errorf("Recursive = %v, want [true]", got)
	}
	if _, ok := gotQuery["IncludeItemTypes"]; ok {
		t.Error("IncludeItemTypes must be absent for non-TV libraries")
	}

	if _, err := c.CountItems(context.Background(), "lib-2", true); err != nil {
		t.Fatalf("CountItems(seriesOnly) failed: %v", err)
	}
	if got := gotQuery["IncludeItemTypes"]; len(got) != 1 || got[0] != "Series" {
		t.Errorf("IncludeItemTypes = %v, want [Series]", got)
	}
}

func TestCountItems_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "key", srv.Client(), testLogger())
	if _, err := c.CountItems(context.Background(), "lib-1", false); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestBaseURL_TrailingSlashTrimmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/System/Info" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Version":"10.9.2"}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL+"/", "key", srv.Client(), testLogger())
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
