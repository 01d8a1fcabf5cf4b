package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux, err := BuildMux(Config{Mock: true})
	if err != nil {
		t.Fatal("could not build the mock server:", err)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLockRefusesManualGeneratorControl(t *testing.T) {
	srv := newMockServer(t)
	resp := postJSON(t, srv.URL+"/generator/lock", `{"bool":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("could not take the lock, got %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/generator/frequency", `{"f64":1000}`)
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423 for manual control under lock, got %d", resp.StatusCode)
	}
	// the lock route itself stays reachable so the lock can be released
	resp = postJSON(t, srv.URL+"/generator/lock", `{"bool":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("could not release the lock, got %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/generator/frequency", `{"f64":1000}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected manual control restored after unlock, got %d", resp.StatusCode)
	}
}

func TestLockStateReadable(t *testing.T) {
	srv := newMockServer(t)
	resp, err := http.Get(srv.URL + "/generator/lock")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected the lock state to be readable, got %d", resp.StatusCode)
	}
}
