package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
	"github.com/ppiankov/tributeguard/internal/rpc"
)

// startTestServer serves ex on a random port and returns its address.
func startTestServer(t *testing.T, ex extract.Extractor) string {
	t.Helper()

	srv := rpc.New(rpc.Config{}, analyzer.New(ex))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)
	t.Cleanup(srv.GracefulStop)
	return lis.Addr().String()
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientAnalyze(t *testing.T) {
	c := newTestClient(t, startTestServer(t, extract.NewStub()))

	res, err := c.Analyze(context.Background(), analyzer.Request{Text: "Go to hell, you deserved this"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.FlaggedContent) != 1 || res.FlaggedContent[0] != "Go to hell, you deserved this" {
		t.Errorf("unexpected spans %q", res.FlaggedContent)
	}

	res, err = c.Analyze(context.Background(), analyzer.Request{Text: "Fuck cancer for taking you"})
	if err != nil {
		t.Fatal(err)
	}
	if res.FlaggedContent == nil || !res.Approved() {
		t.Errorf("expected empty non-nil list, got %#v", res.FlaggedContent)
	}
}

func TestClientSendsPolicyOverride(t *testing.T) {
	seen := make(chan string, 1)
	echo := extract.ExtractorFunc(func(ctx context.Context, call extract.Call) ([]byte, error) {
		seen <- call.System
		return []byte(`{"flaggedContent":[]}`), nil
	})
	c := newTestClient(t, startTestServer(t, echo))

	p := "remote custom policy"
	if _, err := c.Analyze(context.Background(), analyzer.Request{Text: "hi", Policy: &p}); err != nil {
		t.Fatal(err)
	}
	if got := <-seen; got != p {
		t.Errorf("expected override to reach the server, got %q", got)
	}
}

func TestClientErrorClasses(t *testing.T) {
	failing := extract.ExtractorFunc(func(ctx context.Context, call extract.Call) ([]byte, error) {
		return nil, errors.New("boom")
	})
	c := newTestClient(t, startTestServer(t, failing))

	_, err := c.Analyze(context.Background(), analyzer.Request{Text: "   "})
	if !errors.Is(err, analyzer.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	_, err = c.Analyze(context.Background(), analyzer.Request{Text: "Rest in peace"})
	if !errors.Is(err, analyzer.ErrExtractionFailure) {
		t.Errorf("expected ErrExtractionFailure, got %v", err)
	}
}

func TestClientUnreachableServer(t *testing.T) {
	// Grab a free port and close it so nothing is listening.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	c := newTestClient(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Analyze(ctx, analyzer.Request{Text: "Rest in peace"})
	if !errors.Is(err, analyzer.ErrExtractionFailure) {
		t.Fatalf("unreachable server must be an extraction failure, got %v", err)
	}
}

func TestClientDefaultPolicy(t *testing.T) {
	c := newTestClient(t, startTestServer(t, extract.NewStub()))

	p, hash, err := c.DefaultPolicy(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p != policy.Default() || hash != policy.Hash(p) {
		t.Errorf("unexpected policy/hash %s", hash)
	}
}
