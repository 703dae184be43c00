// Package publisher optionally fans derived EV and arbitrage records out to
// Redis Streams, letting out-of-process consumers observe the same signals
// the WebSocket hub delivers without coupling the hub to them.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
)

const globalStream = "odds.derived"

// StreamPublisher publishes derived records to per-sport and global Redis
// Streams. A publisher with Enabled=false or a nil client is a no-op.
type StreamPublisher struct {
	client  *redis.Client
	Enabled bool
}

// NewStreamPublisher wraps a redis client; pass enabled=false to construct a
// publisher that never touches Redis (the default: this side-channel is
// opt-in).
func NewStreamPublisher(client *redis.Client, enabled bool) *StreamPublisher {
	return &StreamPublisher{client: client, Enabled: enabled}
}

// PublishEV publishes one EV record to its sport stream and the global
// stream. The XAdd calls run synchronously; a publish failure is logged and
// dropped, never retried.
func (p *StreamPublisher) PublishEV(ctx context.Context, rec models.EVRecord) {
	if !p.Enabled || p.client == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		telemetry.Warnf("publisher: marshal ev record: %v", err)
		return
	}
	p.xadd(ctx, fmt.Sprintf("odds.derived.ev.%s", rec.Sport), body)
	p.xadd(ctx, globalStream, body)
}

// PublishArbitrage publishes one arbitrage record to its sport stream and
// the global stream.
func (p *StreamPublisher) PublishArbitrage(ctx context.Context, rec models.ArbRecord) {
	if !p.Enabled || p.client == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		telemetry.Warnf("publisher: marshal arbitrage record: %v", err)
		return
	}
	p.xadd(ctx, fmt.Sprintf("odds.derived.arbitrage.%s", rec.Sport), body)
	p.xadd(ctx, globalStream, body)
}

func (p *StreamPublisher) xadd(ctx context.Context, stream string, body []byte) {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"record": string(body)},
	}).Result()
	if err != nil {
		telemetry.Warnf("publisher: xadd %s: %v", stream, err)
	}
}
