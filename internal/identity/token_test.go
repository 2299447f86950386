package identity_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/gridledger/internal/identity"
)

const testSecret = "correct-horse-battery-staple"

func newTestTokens(t *testing.T) *identity.OperatorTokens {
	t.Helper()
	ot, err := identity.NewOperatorTokens(testSecret, "node-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return ot
}

func TestNewOperatorTokens_emptySecret(t *testing.T) {
	if _, err := identity.NewOperatorTokens("", "node-a", time.Hour); !errors.Is(err, identity.ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestOperatorTokens_Issue(t *testing.T) {
	ot := newTestTokens(t)

	token, err := ot.Issue("alice", nil)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}
}

func TestOperatorTokens_Verify_valid(t *testing.T) {
	ot := newTestTokens(t)

	token, err := ot.Issue("alice", []string{identity.ScopeMine})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ot.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	if claims.Subject != "alice" {
		t.Errorf("Subject: got %q, want alice", claims.Subject)
	}
	if claims.NodeID != "node-a" {
		t.Errorf("NodeID: got %q, want node-a", claims.NodeID)
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != identity.ScopeMine {
		t.Errorf("Scopes: got %v", claims.Scopes)
	}
}

func TestOperatorTokens_Verify_defaultScopes(t *testing.T) {
	ot := newTestTokens(t)
	token, _ := ot.Issue("alice", nil)
	claims, err := ot.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range identity.AllScopes {
		if !identity.HasScope(claims, s) {
			t.Errorf("missing default scope %q", s)
		}
	}
}

func TestOperatorTokens_Verify_expired(t *testing.T) {
	ot, _ := identity.NewOperatorTokens(testSecret, "node-a", time.Nanosecond)
	token, err := ot.Issue("alice", nil)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)

	if _, err := ot.Verify(token); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestOperatorTokens_Verify_wrongSecret(t *testing.T) {
	ot := newTestTokens(t)
	other, _ := identity.NewOperatorTokens("another-secret", "node-a", time.Hour)

	token, _ := ot.Issue("alice", nil)
	if _, err := other.Verify(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestOperatorTokens_Verify_wrongNode(t *testing.T) {
	a := newTestTokens(t)
	b, _ := identity.NewOperatorTokens(testSecret, "node-b", time.Hour)

	token, _ := a.Issue("alice", nil)
	if _, err := b.Verify(token); err == nil {
		t.Error("expected error for token issued by another node")
	}
}

func TestOperatorTokens_Verify_tampered(t *testing.T) {
	ot := newTestTokens(t)
	token, _ := ot.Issue("alice", []string{identity.ScopeMine})

	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	mid := len(payload) / 2
	if payload[mid] == 'a' {
		payload[mid] = 'b'
	} else {
		payload[mid] = 'a'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := ot.Verify(tampered); err == nil {
		t.Error("expected error for tampered token, got nil")
	}
}

func TestHasScope(t *testing.T) {
	ot := newTestTokens(t)
	token, _ := ot.Issue("alice", []string{identity.ScopeMine, identity.ScopePeers})
	claims, _ := ot.Verify(token)

	if !identity.HasScope(claims, identity.ScopeMine) {
		t.Error("HasScope(chain:mine) should be true")
	}
	if identity.HasScope(claims, identity.ScopeConsensus) {
		t.Error("HasScope(chain:consensus) should be false")
	}
	if identity.HasScope(nil, identity.ScopeMine) {
		t.Error("HasScope(nil, ...) should be false")
	}
}
