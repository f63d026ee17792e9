package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

const sampleStatsXML = `<?xml version="1.0"?>
<icestats>
    <admin>admin@localhost</admin>
    <server_start_iso8601>2025-08-20T10:00:00+0000</server_start_iso8601>
    <listeners>7</listeners>
    <sources>2</sources>
    <source mount="/english">
        <listeners>5</listeners>
        <server_type>audio/mpeg</server_type>
    </source>
    <source mount="/spanish">
        <listeners>2</listeners>
        <server_type>audio/mpeg</server_type>
    </source>
</icestats>`

// statsTestServer serves the admin endpoints on loopback and returns a
// Config pointing at it. The stats client always dials localhost, so
// the test server's port is all we need to redirect it.
func statsTestServer(t *testing.T, handler http.Handler) Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return Config{Port: port, AdminUser: "admin", AdminPassword: "secret"}
}

func TestGetStats(t *testing.T) {
	cfg := statsTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/stats.xml" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(sampleStatsXML))
	}))

	stats, err := NewStatsClient().GetStats(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Listeners != 7 || stats.Sources != 2 {
		t.Errorf("Totals = %d/%d, want 7/2", stats.Listeners, stats.Sources)
	}
	if len(stats.Mounts) != 2 {
		t.Fatalf("Mounts = %d, want 2", len(stats.Mounts))
	}
	if stats.Mounts[0].Name != "/english" || stats.Mounts[0].Listeners != 5 {
		t.Errorf("First mount = %+v", stats.Mounts[0])
	}
	if stats.ServerStart == "" {
		t.Error("ServerStart missing")
	}
}

func TestGetStats_BadCredentials(t *testing.T) {
	cfg := statsTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := NewStatsClient().GetStats(context.Background(), cfg); err == nil {
		t.Error("Expected error on 401")
	}
}

func TestListMounts(t *testing.T) {
	cfg := statsTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/listmounts.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<icestats><source mount="/english"><listeners>3</listeners></source></icestats>`))
	}))

	mounts, err := NewStatsClient().ListMounts(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ListMounts failed: %v", err)
	}
	if len(mounts) != 1 || mounts[0].Name != "/english" || mounts[0].Listeners != 3 {
		t.Errorf("Mounts = %+v", mounts)
	}
}

func TestPing(t *testing.T) {
	cfg := statsTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Even auth failures prove reachability.
		w.WriteHeader(http.StatusUnauthorized)
	}))

	c := NewStatsClient()
	if !c.Ping(context.Background(), cfg.Port) {
		t.Error("Ping should succeed against any HTTP response")
	}
	if c.Ping(context.Background(), 1) {
		t.Error("Ping against a closed port should fail")
	}
}
