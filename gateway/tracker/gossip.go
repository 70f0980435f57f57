package tracker

import (
	"net/http"
	"sync"
	"time"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// envelope is the wire frame gossiped between nodes: a join carries the
// full definition, a leave only needs enough to identify what left.
type envelope struct {
	Kind   string              `json:"kind"` // "join" | "leave"
	APIID  string              `json:"api_id"`
	Meta   apitypes.Definition `json:"meta"`
	PhxRef string              `json:"phx_ref"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gossip fronts a Local tracker with a peer-to-peer websocket transport:
// every Track/Untrack/Update broadcasts an envelope to connected peers,
// and every inbound envelope is delivered straight into the local
// presence map via Local.Deliver.
type Gossip struct {
	local *Local

	mu    sync.Mutex
	peers map[string]*websocket.Conn

	closeCh chan struct{}
}

// NewGossip wraps a Local tracker with gossip broadcast/receive wiring.
func NewGossip(local *Local) *Gossip {
	g := &Gossip{
		local:   local,
		peers:   make(map[string]*websocket.Conn),
		closeCh: make(chan struct{}),
	}
	local.OnBroadcast(g.broadcast)
	return g
}

// ServeHTTP upgrades inbound peer connections on the gossip endpoint and
// reads envelopes off them until the connection drops.
func (g *Gossip) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("gossip: failed to upgrade inbound peer connection")
		return
	}
	peerAddr := r.RemoteAddr
	g.addPeer(peerAddr, conn)
	g.readLoop(peerAddr, conn)
}

// DialPeer connects outbound to a peer's gossip endpoint and keeps
// reconnecting with a fixed backoff until Close is called.
func (g *Gossip) DialPeer(url string) {
	go func() {
		for {
			select {
			case <-g.closeCh:
				return
			default:
			}
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				log.WithError(err).WithField("peer", url).Warn("gossip: dial failed, retrying")
				time.Sleep(5 * time.Second)
				continue
			}
			g.addPeer(url, conn)
			g.readLoop(url, conn)
			g.removePeer(url)
			time.Sleep(5 * time.Second)
		}
	}()
}

// Close stops reconnect attempts and drops every peer connection.
func (g *Gossip) Close() {
	close(g.closeCh)
	g.mu.Lock()
	defer g.mu.Unlock()
	for addr, conn := range g.peers {
		conn.Close()
		delete(g.peers, addr)
	}
}

func (g *Gossip) addPeer(addr string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[addr] = conn
}

func (g *Gossip) removePeer(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.peers, addr)
}

func (g *Gossip) readLoop(peerAddr string, conn *websocket.Conn) {
	defer conn.Close()
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.WithError(err).WithField("peer", peerAddr).Debug("gossip: peer connection closed")
			return
		}
		g.local.Deliver(env.Kind, env.APIID, env.Meta)
	}
}

// broadcast fans an envelope out to every connected peer. A peer whose
// send fails is given one retry; a second failure drops that peer rather
// than blocking the originating Track/Untrack/Update call.
func (g *Gossip) broadcast(kind, apiID string, meta apitypes.Definition, phxRef string) {
	env := envelope{Kind: kind, APIID: apiID, Meta: meta, PhxRef: phxRef}

	g.mu.Lock()
	peers := make(map[string]*websocket.Conn, len(g.peers))
	for addr, conn := range g.peers {
		peers[addr] = conn
	}
	g.mu.Unlock()

	for addr, conn := range peers {
		if err := conn.WriteJSON(env); err != nil {
			if err := conn.WriteJSON(env); err != nil {
				log.WithError(err).WithField("peer", addr).Warn("gossip: dropping peer after repeated send failure")
				g.removePeer(addr)
				conn.Close()
			}
		}
	}
}
