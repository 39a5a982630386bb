package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

const publishTimeout = 2 * time.Second

// Broker is the slice of the redis client the pub/sub sink needs.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) error
}

// envelope is the channel payload. Origin names the publishing process.
type envelope struct {
	Notification
	Origin string `json:"origin"`
}

// RedisSink mirrors notifications onto a shared channel. It is a side
// channel: pair it with the local sink, never use it alone.
type RedisSink struct {
	broker  Broker
	channel string
	origin  string
	log     zerolog.Logger
}

func NewRedisSink(broker Broker, channel, origin string, log zerolog.Logger) *RedisSink {
	return &RedisSink{broker: broker, channel: channel, origin: origin, log: log}
}

func (r *RedisSink) Notify(message string, severity Severity) {
	if r == nil || r.broker == nil {
		return
	}
	payload, err := json.Marshal(envelope{
		Notification: Notification{Message: message, Severity: severity},
		Origin:       r.origin,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("notification marshal failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.broker.Publish(ctx, r.channel, payload); err != nil {
		r.log.Error().Err(err).Msg("notification publish failed")
	}
}

// Relay forwards notifications published by other processes into dst
// until ctx ends. Payloads carrying origin are skipped.
func Relay(ctx context.Context, broker Broker, channel, origin string, dst Sink, log zerolog.Logger) error {
	return broker.Subscribe(ctx, channel, func(raw []byte) {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn().Err(err).Msg("notification decode failed")
			return
		}
		if origin != "" && env.Origin == origin {
			return
		}
		dst.Notify(env.Message, env.Severity)
	})
}
