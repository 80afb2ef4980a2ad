package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/dispatch"
)

// ListenStream connects to a location's event stream and invokes the
// handler for every pushed envelope until the context is canceled or
// the connection drops. Callers are expected to reconnect and rely on
// their pull cursor to cover the gap.
func (c *Client) ListenStream(ctx context.Context, locationID string, handler func(env dispatch.Envelope)) error {
	if handler == nil {
		return fmt.Errorf("stream handler is required")
	}
	wsURL, origin, err := c.streamURL(locationID)
	if err != nil {
		return err
	}

	conn, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return fmt.Errorf("dial stream %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	for {
		var frame dispatch.Frame
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream frame: %w", err)
		}
		if frame.Type != dispatch.FrameTypeEvent {
			continue
		}
		var env dispatch.Envelope
		if err := json.Unmarshal(frame.Payload, &env); err != nil {
			return fmt.Errorf("decode stream envelope: %w", err)
		}
		handler(env)
	}
}

func (c *Client) streamURL(locationID string) (wsURL, origin string, err error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/v1/locations/" + url.PathEscape(locationID) + "/stream"
	query := parsed.Query()
	query.Set("token", c.token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), c.baseURL + "/", nil
}
