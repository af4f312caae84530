package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mirrorcal/internal/bus"
	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
)

// forwardTimeout bounds one POST to the fetcher.
const forwardTimeout = 15 * time.Second

// Outbound lists the notifications the module sends to the fetcher and to
// other modules.
var Outbound = []bus.Name{bus.AddCalendar, bus.FetchCalendar, bus.AddSwedishCalendar, bus.BroadcastEvents}

// envelope is the JSON body posted to the fetcher.
type envelope struct {
	Name    bus.Name `json:"name"`
	ID      string   `json:"id"`
	Payload any      `json:"payload"`
}

// Forwarder posts outbound bus messages to an external fetcher.
type Forwarder struct {
	url    string
	client *http.Client
	msgs   <-chan bus.Message
	cancel func()
}

// NewForwarder subscribes to the outbound names right away, so messages
// published before Run are not lost.
func NewForwarder(b *bus.Bus, url string) *Forwarder {
	msgs, cancel := b.Subscribe(64, Outbound...)
	return &Forwarder{
		url:    url,
		client: &http.Client{Timeout: forwardTimeout},
		msgs:   msgs,
		cancel: cancel,
	}
}

// Run forwards messages until ctx is done or the bus closes.
func (f *Forwarder) Run(ctx context.Context) {
	defer f.cancel()
	appLog.Info("forwarding notifications", "url", config.RedactURL(f.url))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-f.msgs:
			if !ok {
				return
			}
			if err := f.Send(ctx, msg); err != nil {
				appLog.Error("forward notification failed", err, "name", string(msg.Name), "url", config.RedactURL(f.url))
			}
		}
	}
}

// Send posts one message.
func (f *Forwarder) Send(ctx context.Context, msg bus.Message) error {
	body, err := json.Marshal(envelope{Name: msg.Name, ID: msg.ID, Payload: msg.Payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetcher answered %s", resp.Status)
	}
	appLog.Debug("notification forwarded", "name", string(msg.Name), "status", resp.StatusCode)
	return nil
}
