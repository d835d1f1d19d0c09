package notify

import (
	"context"
	"errors"
)

// Transport delivers one payload to one device token and returns the
// provider's message id.
type Transport interface {
	Deliver(ctx context.Context, token string, p Payload) (messageID string, err error)
}

// ErrDisabled is returned by Disabled for every delivery.
var ErrDisabled = errors.New("push transport not configured")

// Disabled is the transport used when no push gateway is configured. Every
// attempt counts as a failure, so summaries stay truthful.
type Disabled struct{}

func (Disabled) Deliver(context.Context, string, Payload) (string, error) {
	return "", ErrDisabled
}

// Message is what callers hand to Fanout.Send.
type Message struct {
	Title   string
	Body    string
	Sound   string
	Channel string
	Data    map[string]any
}

// Payload is the wire form of a Message. Data values are always strings.
type Payload struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Sound   string            `json:"sound"`
	Channel string            `json:"channel_id"`
	Data    map[string]string `json:"data"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Detail struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes one fan-out. Total == Success + Failed.
type Result struct {
	BatchID string   `json:"batch_id,omitempty"`
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Details []Detail `json:"details,omitempty"`
}

// Redacted returns a copy safe to hand to API clients: every token is
// replaced by its Redact form.
func (r Result) Redacted() Result {
	if len(r.Details) == 0 {
		return r
	}
	out := r
	out.Details = make([]Detail, len(r.Details))
	for i, d := range r.Details {
		d.Token = Redact(d.Token)
		out.Details[i] = d
	}
	return out
}
