package peeraddr_test

import (
	"testing"

	"github.com/jmerrifield20/gridledger/pkg/peeraddr"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"http://Node-A:8000/":    "http://node-a:8000",
		"  http://node-b:8000  ": "http://node-b:8000",
		"0xabc123":               "0xabc123",
		"HTTPS://x.example/api/": "https://x.example/api",
	}
	for in, want := range cases {
		got, err := peeraddr.Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "/", "two words", `back\slash`} {
		if _, err := peeraddr.Normalize(in); err == nil {
			t.Errorf("Normalize(%q): expected error", in)
		}
	}
}

func TestHTTPBase(t *testing.T) {
	if base, ok := peeraddr.HTTPBase("http://node:8000/?x=1"); !ok || base != "http://node:8000" {
		t.Errorf("HTTPBase: got %q, %v", base, ok)
	}
	if _, ok := peeraddr.HTTPBase("0xabc123"); ok {
		t.Error("wallet address should not resolve to an HTTP base")
	}
	if _, ok := peeraddr.HTTPBase("ftp://node"); ok {
		t.Error("ftp scheme should not resolve to an HTTP base")
	}
}
