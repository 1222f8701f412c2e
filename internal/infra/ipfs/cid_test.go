package ipfs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/vietddude/snapshotter/internal/indexing/recovery"
)

func TestLocalCID_Deterministic(t *testing.T) {
	data := []byte(`{"a":1,"b":[1,2]}`)

	first, err := LocalCID(data)
	if err != nil {
		t.Fatalf("LocalCID failed: %v", err)
	}
	second, _ := LocalCID(data)
	if first != second {
		t.Errorf("Expected identical CIDs, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "b") {
		t.Errorf("Expected base32 multibase prefix, got %s", first)
	}

	parsed, err := cid.Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if parsed.Version() != 1 || parsed.Type() != cid.Raw {
		t.Errorf("Expected CIDv1 raw, got v%d codec %d", parsed.Version(), parsed.Type())
	}

	other, _ := LocalCID([]byte(`{"a":2}`))
	if other == first {
		t.Error("Expected different content to yield different CIDs")
	}
}

func TestClient_PutRetries(t *testing.T) {
	want, _ := LocalCID([]byte("x"))
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/add" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"Name":"snapshot.json","Hash":%q,"Size":"1"}`, want)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.policy = recovery.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	got, err := c.Put(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_PutExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.policy = recovery.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	if _, err := c.Put(context.Background(), []byte("x")); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls.Load() != 5 {
		t.Errorf("Expected 5 attempts, got %d", calls.Load())
	}
}
