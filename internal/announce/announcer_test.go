package announce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

func testBlock() *chain.Block {
	return &chain.Block{Index: 1, PreviousHash: "00ab", Timestamp: 1, Hash: "00cd"}
}

func TestAnnounce_skipsNonHTTPPeers(t *testing.T) {
	a := New(time.Second, zap.NewNop())

	var mu sync.Mutex
	var bases []string
	a.SetPoster(func(_ context.Context, base string, _ *chain.Block) (bool, string, error) {
		mu.Lock()
		bases = append(bases, base)
		mu.Unlock()
		return true, "Block added to the chain", nil
	})

	a.Announce(context.Background(), testBlock(), []string{"http://a:8000", "0xwallet", "https://b"})
	if len(bases) != 2 {
		t.Fatalf("posted to %v, want 2 peers", bases)
	}
}

func TestAnnounce_retriesTransportErrors(t *testing.T) {
	a := New(time.Second, zap.NewNop())
	a.SetRetryDelays([]time.Duration{0, time.Millisecond, time.Millisecond})

	attempts := 0
	a.SetPoster(func(context.Context, string, *chain.Block) (bool, string, error) {
		attempts++
		if attempts < 3 {
			return false, "", errors.New("connection refused")
		}
		return true, "", nil
	})

	var results []bool
	a.SetMetricsRecord(func(ok bool) { results = append(results, ok) })

	a.Announce(context.Background(), testBlock(), []string{"http://a:8000"})
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(results) != 3 || results[2] != true {
		t.Errorf("results = %v", results)
	}
}

func TestAnnounce_doesNotRetryRejection(t *testing.T) {
	a := New(time.Second, zap.NewNop())
	a.SetRetryDelays([]time.Duration{0, time.Millisecond})

	attempts := 0
	a.SetPoster(func(context.Context, string, *chain.Block) (bool, string, error) {
		attempts++
		return false, "The block was discarded by the node", nil
	})

	a.Announce(context.Background(), testBlock(), []string{"http://a:8000"})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestHTTPPoster(t *testing.T) {
	var got chain.Block
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/add_block" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"Block added to the chain"}`))
	}))
	defer srv.Close()

	accepted, msg, err := HTTPPoster(time.Second)(context.Background(), srv.URL, testBlock())
	if err != nil || !accepted {
		t.Fatalf("post = (%v, %q, %v)", accepted, msg, err)
	}
	if got.Hash != "00cd" || got.Index != 1 {
		t.Errorf("server received %+v", got)
	}
}
