package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/identity"
	"github.com/jmerrifield20/gridledger/internal/node"
	"github.com/jmerrifield20/gridledger/internal/node/handler"
)

func newTestNode(t *testing.T, cfg node.Config) *node.Node {
	t.Helper()
	n, err := node.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Close)
	return n
}

func setupRouter(t *testing.T, n *node.Node, tokens *identity.OperatorTokens) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewNodeHandler(n, tokens, zap.NewNop())
	h.Register(r.Group(""))
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	s, _ := resp["message"].(string)
	return s
}

func TestNewTransaction_201(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodPost, "/new_transaction", map[string]any{
		"author":  "0xbuyer",
		"content": map[string]any{"payment": 12.5, "seller": "0xseller"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := message(t, w); got != node.MsgSuccess {
		t.Errorf("message = %q", got)
	}
	if len(n.PendingTransactions()) != 1 {
		t.Error("transaction not pooled")
	}
}

func TestNewTransaction_400(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, nil)

	for name, body := range map[string]any{
		"missing author":  map[string]any{"content": map[string]any{"x": 1}},
		"missing content": map[string]any{"author": "0xa"},
		"malformed json":  "{not json",
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/new_transaction", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := message(t, w); got != node.MsgInvalidTx {
				t.Errorf("message = %q", got)
			}
		})
	}
	if len(n.PendingTransactions()) != 0 {
		t.Error("no transaction should be pooled")
	}
}

func TestMine_nothingToMine(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodGet, "/mine", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := message(t, w); got != node.MsgNothingToMine {
		t.Errorf("message = %q", got)
	}
}

func TestMine_blockMined(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 2})
	r := setupRouter(t, n, nil)

	do(t, r, http.MethodPost, "/new_transaction", map[string]any{
		"author": "0xa", "content": map[string]any{"payment": 1.0},
	})
	w := do(t, r, http.MethodPost, "/mine", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := message(t, w); got != "Block #1 is mined." {
		t.Errorf("message = %q", got)
	}
}

func TestMine_timeout504(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 6, MaxAttempts: 1})
	r := setupRouter(t, n, nil)

	do(t, r, http.MethodPost, "/new_transaction", map[string]any{
		"author": "0xa", "content": map[string]any{"payment": 1.0},
	})
	w := do(t, r, http.MethodPost, "/mine", nil)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", w.Code)
	}
	if got := message(t, w); got != node.MsgMiningTimedOut {
		t.Errorf("message = %q", got)
	}
}

func TestMine_routeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := gin.New()
	h := handler.NewNodeHandler(n, nil, zap.NewNop())
	h.SetMineLimit(handler.NewRateLimit("mine", 0.1, 1))
	h.Register(r.Group(""))

	if w := do(t, r, http.MethodGet, "/mine", nil); w.Code != http.StatusOK {
		t.Fatalf("first mine: expected 200, got %d", w.Code)
	}
	w := do(t, r, http.MethodPost, "/mine", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second mine: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "10" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	// Other routes are not throttled by the mine limit.
	for i := 0; i < 3; i++ {
		if w := do(t, r, http.MethodGet, "/chain", nil); w.Code != http.StatusOK {
			t.Fatalf("/chain: expected 200, got %d", w.Code)
		}
	}
}

func TestChain_snapshot(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	n.SubmitTransaction("0xa", map[string]any{"payment": 1.0})
	n.Mine(t.Context())
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodGet, "/chain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap node.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Length != 2 || len(snap.Chain) != 2 {
		t.Fatalf("length = %d/%d, want 2", snap.Length, len(snap.Chain))
	}
	if snap.Chain[0].PreviousHash != chain.GenesisPreviousHash {
		t.Error("first block should be genesis")
	}
}

func TestVerify_valid(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodGet, "/chain/verify", nil)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp)
	}
}

func TestPendingTx(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	n.SubmitTransaction("0xa", map[string]any{"payment": 1.0})
	n.SubmitTransaction("0xb", map[string]any{"payment": 2.0})
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodGet, "/pending_tx", nil)
	var txs []chain.Transaction
	if err := json.Unmarshal(w.Body.Bytes(), &txs); err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[0].Author != "0xa" {
		t.Errorf("pending = %+v", txs)
	}
}

func TestAddBlock(t *testing.T) {
	miner := newTestNode(t, node.Config{Difficulty: 2})
	miner.SubmitTransaction("0xa", map[string]any{"payment": 1.0})
	if _, err := miner.Mine(t.Context()); err != nil {
		t.Fatal(err)
	}
	mined, _ := miner.Ledger().Tip()

	receiver := newTestNode(t, node.Config{Difficulty: 2})
	r := setupRouter(t, receiver, nil)

	w := do(t, r, http.MethodPost, "/add_block", mined)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := message(t, w); got != node.MsgBlockAdded {
		t.Errorf("message = %q", got)
	}

	tampered := *mined
	tampered.PreviousHash = "ff"
	w = do(t, r, http.MethodPost, "/add_block", &tampered)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := message(t, w); got != node.MsgBlockDiscarded {
		t.Errorf("message = %q", got)
	}
	if receiver.Ledger().Len() != 2 {
		t.Errorf("length = %d, want 2", receiver.Ledger().Len())
	}
}

func TestRegisterNode(t *testing.T) {
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, nil)

	w := do(t, r, http.MethodPost, "/register_node", map[string]string{"address": "http://10.0.0.2:8000"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var snap node.Snapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Length != 1 || len(snap.Peers) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	w = do(t, r, http.MethodPost, "/register_node", map[string]string{"address": ""})
	if w.Code != http.StatusBadRequest || message(t, w) != node.MsgInvalidData {
		t.Fatalf("empty address: %d %s", w.Code, w.Body.String())
	}
}

func TestPeerSnapshotAndConsensus(t *testing.T) {
	remote := newTestNode(t, node.Config{Difficulty: 1})
	for i := 0; i < 2; i++ {
		remote.SubmitTransaction("0xr", map[string]any{"payment": float64(i)})
		remote.Mine(t.Context())
	}

	local := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, local, nil)

	const addr = "http://remote:8000"
	w := do(t, r, http.MethodPost, "/peers/snapshot", map[string]any{"address": addr, "chain": remote.Ledger().Blocks()})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unregistered peer: expected 404, got %d", w.Code)
	}

	do(t, r, http.MethodPost, "/register_node", map[string]string{"address": addr})
	w = do(t, r, http.MethodPost, "/peers/snapshot", map[string]any{"address": addr, "chain": remote.Ledger().Blocks()})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/consensus", nil)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["replaced"] != true || resp["length"] != float64(3) {
		t.Errorf("consensus = %v", resp)
	}
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	tokens, err := identity.NewOperatorTokens("s3cret", "node-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	n := newTestNode(t, node.Config{Difficulty: 1})
	r := setupRouter(t, n, tokens)

	for _, path := range []string{"/mine", "/register_node", "/consensus", "/peers/snapshot"} {
		if w := do(t, r, http.MethodPost, path, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("POST %s without token: expected 401, got %d", path, w.Code)
		}
	}

	// Public routes stay open.
	if w := do(t, r, http.MethodGet, "/chain", nil); w.Code != http.StatusOK {
		t.Errorf("GET /chain: expected 200, got %d", w.Code)
	}

	tok, _ := tokens.Issue("operator", nil)
	w := do(t, r, http.MethodPost, "/mine", nil, "Authorization", "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Errorf("POST /mine with token: expected 200, got %d", w.Code)
	}
}
