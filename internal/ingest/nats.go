package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const (
	natsAckWait       = 30 * time.Second
	natsMaxDeliver    = 5
	natsMaxAckPending = 256
	natsNackDelay     = 2 * time.Second
	natsHandleTimeout = 20 * time.Second
)

type NATSConfig struct {
	URL      string
	Subject  string
	Stream   string
	Consumer string
}

// NATSSubscriber consumes signals from a JetStream queue consumer and hands
// them to the ingest service.
type NATSSubscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	svc *Service
	log *zap.Logger
}

func NewNATSSubscriber(cfg NATSConfig, svc *Service, log *zap.Logger) (*NATSSubscriber, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("uptimemonitor-ingest"))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}

	s := &NATSSubscriber{nc: nc, svc: svc, log: log.Named("nats")}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.Consumer, s.onMessage,
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.Consumer),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(natsAckWait),
		nats.MaxDeliver(natsMaxDeliver),
		nats.MaxAckPending(natsMaxAckPending),
		nats.DeliverAll(),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.Consumer, err)
	}
	s.sub = sub
	s.log.Info("nats_ingest_started", zap.String("subject", cfg.Subject), zap.String("stream", cfg.Stream))
	return s, nil
}

func (s *NATSSubscriber) onMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), natsHandleTimeout)
	defer cancel()

	switch d := decide(ctx, s.svc, msg.Data); d.action {
	case actionAck:
		if d.err != nil {
			s.log.Warn("nats_ingest_dropped", zap.String("subject", msg.Subject), zap.Error(d.err))
		}
		if err := msg.Ack(); err != nil {
			s.log.Warn("nats_ingest_ack_failed", zap.String("subject", msg.Subject), zap.Error(err))
		}
	case actionNak:
		s.log.Error("nats_ingest_redeliver", zap.String("subject", msg.Subject), zap.Duration("delay", d.delay), zap.Error(d.err))
		if err := msg.NakWithDelay(d.delay); err != nil {
			s.log.Warn("nats_ingest_nack_failed", zap.String("subject", msg.Subject), zap.Error(err))
		}
	}
}

type action int

const (
	actionAck action = iota
	actionNak
)

type decision struct {
	action action
	delay  time.Duration
	err    error
}

// decide maps a payload to an ack decision. Malformed and invalid signals
// are acked so they are not redelivered forever; rate limited and
// persistence failures are redelivered.
func decide(ctx context.Context, svc *Service, data []byte) decision {
	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return decision{action: actionAck, err: fmt.Errorf("decode: %w", err)}
	}
	_, err := svc.Handle(ctx, sig)
	var rl *domain.RateLimitedError
	switch {
	case err == nil:
		return decision{action: actionAck}
	case errors.As(err, &rl):
		return decision{action: actionNak, delay: rl.RetryAfter, err: err}
	case domain.IsValidation(err):
		return decision{action: actionAck, err: err}
	default:
		return decision{action: actionNak, delay: natsNackDelay, err: err}
	}
}

// Close drains the subscription and closes the connection.
func (s *NATSSubscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	s.nc.Close()
	return nil
}
