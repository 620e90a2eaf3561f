package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ensemble-signal-engine/internal/logging"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Execution clients connect from arbitrary hosts.
		return true
	},
}

// WSConfig holds the bidirectional bridge settings.
type WSConfig struct {
	ListenAddr   string `json:"listen_addr"` // host:port for the signal endpoint
	WriteTimeout int    `json:"write_timeout_ms"`
}

// peer is one connected execution client.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	remote  string
}

func (p *peer) write(deadline time.Duration, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(deadline))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// WSBridge is the fallback, bidirectional transport. It keeps an explicit
// set of connected peers and broadcasts as a concurrent fan-out; one dead
// peer is removed without touching the rest.
type WSBridge struct {
	cfg     WSConfig
	server  *http.Server
	ring    *LatencyRing
	running atomic.Bool

	mu    sync.RWMutex
	peers map[*peer]bool

	// OnConnect / OnDisconnect fire with the peer's remote address.
	OnConnect    func(remote string)
	OnDisconnect func(remote string)

	wg  sync.WaitGroup
	log zerolog.Logger
}

// NewWSBridge creates the bridge; the listener starts in Start.
func NewWSBridge(cfg WSConfig) *WSBridge {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:8765"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2000
	}
	return &WSBridge{
		cfg:   cfg,
		ring:  NewLatencyRing(DefaultLatencySamples),
		peers: make(map[*peer]bool),
		log:   logging.Component("ws-bridge"),
	}
}

// Name implements Bridge.
func (b *WSBridge) Name() string { return "websocket" }

// Start launches the WebSocket listener.
func (b *WSBridge) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleUpgrade)

	b.server = &http.Server{Addr: b.cfg.ListenAddr, Handler: mux}
	b.running.Store(true)

	ln := make(chan error, 1)
	go func() {
		err := b.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.running.Store(false)
			ln <- err
		}
	}()

	// Give a doomed listener a moment to fail so Start can report it.
	select {
	case err := <-ln:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	b.log.Info().Str("addr", b.cfg.ListenAddr).Msg("WebSocket bridge started")
	return nil
}

// Stop closes the listener and disconnects every peer.
func (b *WSBridge) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.server.Shutdown(ctx)

	b.mu.Lock()
	for p := range b.peers {
		p.conn.Close()
	}
	b.peers = make(map[*peer]bool)
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info().Msg("WebSocket bridge stopped")
	return err
}

// Send broadcasts the signal to every connected peer concurrently. A peer
// whose write fails is removed and its disconnect notification fired; the
// send succeeds if at least one peer received the frame.
func (b *WSBridge) Send(sig *SignalMessage) bool {
	if !b.running.Load() {
		return false
	}

	payload, err := EncodeSignal(sig)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to serialize signal")
		return false
	}

	b.mu.RLock()
	peers := make([]*peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.RUnlock()

	deadline := time.Duration(b.cfg.WriteTimeout) * time.Millisecond
	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p *peer) {
			defer wg.Done()
			if err := p.write(deadline, payload); err != nil {
				b.dropPeer(p, err)
				return
			}
			delivered.Add(1)
		}(p)
	}
	wg.Wait()

	b.log.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Int64("delivered", delivered.Load()).
		Int("peers", len(peers)).
		Msg("Signal broadcast")

	return delivered.Load() > 0
}

// Healthy reports whether the listener is up.
func (b *WSBridge) Healthy() bool {
	return b.running.Load()
}

// Health implements Bridge.
func (b *WSBridge) Health() Health {
	avg, _, _, count := b.ring.Stats()
	return Health{
		Name:           b.Name(),
		Running:        b.running.Load(),
		Healthy:        b.Healthy(),
		ConnectedPeers: b.PeerCount(),
		AvgLatencyMs:   avg,
		LatencySamples: count,
	}
}

// PeerCount returns the number of connected peers.
func (b *WSBridge) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

func (b *WSBridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("Upgrade failed")
		return
	}

	p := &peer{conn: conn, remote: conn.RemoteAddr().String()}
	b.mu.Lock()
	b.peers[p] = true
	b.mu.Unlock()

	b.log.Info().Str("peer", p.remote).Msg("Peer connected")
	if b.OnConnect != nil {
		b.OnConnect(p.remote)
	}

	b.wg.Add(1)
	go b.readLoop(p)
}

// readLoop consumes inbound frames from one peer: heartbeats are answered
// with the rolling average latency, anything else is logged and ignored.
func (b *WSBridge) readLoop(p *peer) {
	defer b.wg.Done()
	defer b.dropPeer(p, nil)

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		msgType, err := DecodeType(data)
		if err != nil {
			b.log.Warn().Err(err).Str("peer", p.remote).Msg("Ignoring malformed frame")
			continue
		}

		switch msgType {
		case TypeHeartbeat:
			b.handleHeartbeat(p, data)
		default:
			b.log.Warn().Str("type", msgType).Str("peer", p.remote).Msg("Ignoring unknown message type")
		}
	}
}

func (b *WSBridge) handleHeartbeat(p *peer, data []byte) {
	hb, err := DecodeHeartbeat(data)
	if err != nil {
		b.log.Warn().Err(err).Str("peer", p.remote).Msg("Ignoring malformed heartbeat")
		return
	}

	if hb.ClientTimestamp > 0 {
		latencyMs := float64(time.Now().UnixNano()-hb.ClientTimestamp) / 1e6
		b.ring.Add(latencyMs)
	}

	resp := HeartbeatResponse{
		Type:         TypeHeartbeatResponse,
		ServerTime:   time.Now().UnixNano(),
		AvgLatencyMs: b.ring.Average(),
	}
	payload, err := jsonMarshal(resp)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to serialize heartbeat response")
		return
	}
	if err := p.write(time.Duration(b.cfg.WriteTimeout)*time.Millisecond, payload); err != nil {
		b.dropPeer(p, err)
	}
}

// dropPeer removes a peer from the set exactly once and fires the
// disconnect notification.
func (b *WSBridge) dropPeer(p *peer, cause error) {
	b.mu.Lock()
	if !b.peers[p] {
		b.mu.Unlock()
		return
	}
	delete(b.peers, p)
	b.mu.Unlock()

	p.conn.Close()

	if cause != nil {
		b.log.Warn().Err(cause).Str("peer", p.remote).Msg("Peer dropped")
	} else {
		b.log.Info().Str("peer", p.remote).Msg("Peer disconnected")
	}
	if b.OnDisconnect != nil {
		b.OnDisconnect(p.remote)
	}
}
