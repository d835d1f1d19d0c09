package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Push posts data-only messages to an HTTP push gateway. The app on the
// device renders the notification itself, so title, body, sound and channel
// travel inside the data map as well.
type Push struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewPush(endpoint, token string, timeout time.Duration) *Push {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Push{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	To       string            `json:"to"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
	APNS     apns              `json:"apns"`
}

type apns struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type pushResponse struct {
	MessageID string `json:"message_id"`
	Name      string `json:"name"`
}

func (p *Push) Deliver(ctx context.Context, token string, pl Payload) (string, error) {
	if p == nil || p.Endpoint == "" {
		return "", ErrDisabled
	}
	data := make(map[string]string, len(pl.Data)+4)
	for k, v := range pl.Data {
		data[k] = v
	}
	data["title"] = pl.Title
	data["body"] = pl.Body
	data["sound"] = pl.Sound
	data["channel_id"] = pl.Channel

	body, err := json.Marshal(pushRequest{
		To:       token,
		Priority: "high",
		Data:     data,
		APNS:     apns{Sound: pl.Sound, Badge: 1},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("push gateway: status %d", resp.StatusCode)
	}
	// The gateway accepted the message; an unreadable body only costs us
	// the message id, so it still counts as delivered.
	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil
	}
	if out.MessageID == "" {
		out.MessageID = out.Name
	}
	return out.MessageID, nil
}
