package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"payload":["one mail","another mail"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	payload, err := c.Fetch(context.Background(), "u1@example.com", "mail", "unread", map[string]string{"limit": "10"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if payload != `["one mail","another mail"]` {
		t.Fatalf("payload = %q", payload)
	}
	if got.Address != "u1@example.com" || got.Action != "mail" || got.SubAction != "unread" {
		t.Fatalf("request = %+v", got)
	}
	if got.Params["limit"] != "10" {
		t.Fatalf("params = %v", got.Params)
	}
}

func TestFetch_UpstreamFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "a", "calendar", "today", nil); err == nil {
		t.Fatal("want error when upstream reports failure")
	}
}

func TestFetch_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "a", "mail", "unread", nil); err == nil {
		t.Fatal("want error on 502")
	}
}
