package tracker

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowgate/gateway/gateway/apitypes"
)

func TestGossipBroadcastsTrackToConnectedPeer(t *testing.T) {
	nodeA := New("node-a")
	gossipA := NewGossip(nodeA)
	defer gossipA.Close()

	nodeB := New("node-b")
	gossipB := NewGossip(nodeB)
	defer gossipB.Close()
	listener := &recordingListener{}
	nodeB.SetListener(listener)

	serverB := httptest.NewServer(gossipB)
	defer serverB.Close()

	wsURL := "ws" + strings.TrimPrefix(serverB.URL, "http")
	gossipA.DialPeer(wsURL)

	// Give the dial goroutine a moment to establish the connection before
	// the first broadcast races it.
	deadline := time.Now().Add(2 * time.Second)
	for len(gossipA.peers) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := nodeA.Track("svc", apitypes.Definition{Name: "svc"}); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for len(listener.joins) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(listener.joins) != 1 {
		t.Fatalf("expected node-b to receive the join via gossip, got %v", listener.joins)
	}
}
