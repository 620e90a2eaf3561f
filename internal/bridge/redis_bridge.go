package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ensemble-signal-engine/internal/logging"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the broadcast bridge settings.
type RedisConfig struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	SignalChannel string `json:"signal_channel"`  // pub/sub channel for signals
	HeartbeatList string `json:"heartbeat_list"`  // list clients push heartbeats to
	ResponseList  string `json:"response_list"`   // list heartbeat responses go to
	SendTimeoutMs int    `json:"send_timeout_ms"` // per-publish deadline
}

// RedisBridge is the primary, broadcast-style transport: signals are
// published to a pub/sub channel for anonymous subscribers, and a separate
// list-based request/response channel carries heartbeat round trips for
// latency measurement.
type RedisBridge struct {
	cfg     RedisConfig
	client  *redis.Client
	ring    *LatencyRing
	running atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewRedisBridge creates the bridge; the connection is established in Start.
func NewRedisBridge(cfg RedisConfig) *RedisBridge {
	if cfg.SignalChannel == "" {
		cfg.SignalChannel = "signals"
	}
	if cfg.HeartbeatList == "" {
		cfg.HeartbeatList = "heartbeat:requests"
	}
	if cfg.ResponseList == "" {
		cfg.ResponseList = "heartbeat:responses"
	}
	if cfg.SendTimeoutMs <= 0 {
		cfg.SendTimeoutMs = 500
	}

	return &RedisBridge{
		cfg:  cfg,
		ring: NewLatencyRing(DefaultLatencySamples),
		log:  logging.Component("redis-bridge"),
	}
}

// Name implements Bridge.
func (b *RedisBridge) Name() string { return "redis" }

// Start connects to Redis and launches the heartbeat handler.
func (b *RedisBridge) Start() error {
	b.client = redis.NewClient(&redis.Options{
		Addr:     b.cfg.Addr,
		Password: b.cfg.Password,
		DB:       b.cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return err
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	b.cancel = loopCancel
	b.running.Store(true)

	b.wg.Add(1)
	go b.heartbeatLoop(loopCtx)

	b.log.Info().Str("addr", b.cfg.Addr).Str("channel", b.cfg.SignalChannel).Msg("Redis bridge started")
	return nil
}

// Stop shuts the bridge down and closes the connection.
func (b *RedisBridge) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}
	b.cancel()
	b.wg.Wait()

	err := b.client.Close()
	b.log.Info().Msg("Redis bridge stopped")
	return err
}

// Send publishes the signal to the broadcast channel. Subscribers are
// anonymous; delivery succeeds as long as the publish does.
func (b *RedisBridge) Send(sig *SignalMessage) bool {
	if !b.running.Load() {
		return false
	}

	payload, err := EncodeSignal(sig)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to serialize signal")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(b.cfg.SendTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := b.client.Publish(ctx, b.cfg.SignalChannel, payload).Err(); err != nil {
		b.log.Error().Err(err).Msg("Failed to publish signal")
		return false
	}

	b.log.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Float64("confidence", sig.Confidence).
		Msg("Signal published")
	return true
}

// Healthy reports whether the bridge is running and the connection answers.
func (b *RedisBridge) Healthy() bool {
	if !b.running.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return b.client.Ping(ctx).Err() == nil
}

// Health implements Bridge.
func (b *RedisBridge) Health() Health {
	avg, _, _, count := b.ring.Stats()
	return Health{
		Name:           b.Name(),
		Running:        b.running.Load(),
		Healthy:        b.Healthy(),
		AvgLatencyMs:   avg,
		LatencySamples: count,
	}
}

// heartbeatLoop serves the request/response latency channel: clients push a
// timestamped heartbeat onto the request list and read the response list.
func (b *RedisBridge) heartbeatLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		res, err := b.client.BRPop(ctx, time.Second, b.cfg.HeartbeatList).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // poll timeout, nothing queued
			}
			if ctx.Err() != nil {
				return
			}
			b.log.Error().Err(err).Msg("Heartbeat poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		b.handleHeartbeat(ctx, []byte(res[1]))
	}
}

func (b *RedisBridge) handleHeartbeat(ctx context.Context, payload []byte) {
	hb, err := DecodeHeartbeat(payload)
	if err != nil {
		// Unknown or malformed frames are logged and ignored, never fatal.
		b.log.Warn().Err(err).Msg("Ignoring unexpected heartbeat frame")
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
	data, err := jsonMarshal(resp)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to serialize heartbeat response")
		return
	}

	if err := b.client.RPush(ctx, b.cfg.ResponseList, data).Err(); err != nil && ctx.Err() == nil {
		b.log.Error().Err(err).Msg("Failed to push heartbeat response")
	}
}
