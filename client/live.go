package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// liveReadLimit bounds one frame; snapshots carry whole lists.
const liveReadLimit = 32 << 20

// ErrStopWatching may be returned by a watch callback to end the watch
// without an error.
var ErrStopWatching = errors.New("stop watching")

// Watch opens a live connection for kinds (all kinds when empty) and calls
// fn for every event until ctx is done, the server closes the connection or
// fn returns an error.
func (c *Client) Watch(ctx context.Context, kinds []string, fn func(Event) error) error {
	u, err := c.liveURL(kinds)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	// The dialer rejects clients with a Timeout; ctx bounds the handshake.
	hc := *c.httpClient
	hc.Timeout = 0

	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: &hc,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: "live_rejected", Message: err.Error()}
		}
		return fmt.Errorf("dial live: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort close on return

	conn.SetReadLimit(liveReadLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read live: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		if err := fn(ev); err != nil {
			conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck // best-effort
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}

		if ev.Type == EventShutdown {
			return nil
		}
	}
}

func (c *Client) liveURL(kinds []string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/live")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := url.Values{}
	for _, k := range kinds {
		q.Add("kind", strings.TrimSpace(k))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
