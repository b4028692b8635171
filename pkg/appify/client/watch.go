package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// WatchRun subscribes to the status events of runID on the server's
// real-time channel. The returned channel is closed after the run's final
// event, when the connection drops, or when ctx is done. A dropped
// connection is reported as a run-error event first.
func (c *Client) WatchRun(ctx context.Context, credential, runID string) (<-chan types.RunEvent, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	wsURL, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	key := c.credential(credential)
	if key != "" {
		header.Set(apiKeyHeader, key)
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("websocket handshake failed: %v", err)}
		}
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}

	frame := types.SubscriptionFrame{Type: types.FrameSubscribe, RunID: runID, APIKey: key}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe to run %s: %w", runID, err)
	}

	events := make(chan types.RunEvent, 8)
	go func() {
		defer close(events)
		defer func() { _ = conn.Close() }()
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		for {
			var ev types.RunEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					select {
					case events <- types.RunEvent{Type: types.EventRunError, RunID: runID, Error: err.Error()}:
					case <-ctx.Done():
					}
				}
				return
			}
			if ev.RunID != "" && ev.RunID != runID {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Final() {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
