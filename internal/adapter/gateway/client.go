package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"switchd/internal/domain"
)

// RemoteError is an error frame returned by the gateway.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Client calls RPC methods on a remote gateway and receives its events.
type Client struct {
	ws     *websocket.Conn
	events chan domain.Event

	mu      sync.Mutex
	pending map[string]chan Frame
	err     error
	done    chan struct{}
}

// Dial connects to a gateway websocket URL such as ws://host:8787/ws.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	ws, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrGatewayAuthFailed
		}
		return nil, fmt.Errorf("gateway dial: %w", err)
	}
	c := &Client{
		ws:      ws,
		events:  make(chan domain.Event, 64),
		pending: make(map[string]chan Frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers bus events forwarded by the gateway. Events are dropped
// when the channel is full. The channel is closed when the connection ends.
func (c *Client) Events() <-chan domain.Event { return c.events }

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var f Frame
		if err := wsjson.Read(context.Background(), c.ws, &f); err != nil {
			c.fail(err)
			return
		}
		switch f.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case FrameTypeEvent:
			var ev domain.Event
			if json.Unmarshal(f.Payload, &ev) != nil {
				continue
			}
			select {
			case c.events <- ev:
			default:
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
		close(c.done)
	}
}

// Call sends a request and decodes the response payload into out (which may
// be nil).
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	var payload json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		payload = raw
	}

	id := ulid.Make().String()
	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("gateway connection closed: %w", err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, Frame{Type: FrameTypeRequest, ID: id, Method: method, Payload: payload}); err != nil {
		return fmt.Errorf("gateway write: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return &RemoteError{Code: resp.Code, Message: resp.Error}
		}
		if out != nil && len(resp.Payload) > 0 {
			return json.Unmarshal(resp.Payload, out)
		}
		return nil
	case <-c.done:
		return fmt.Errorf("gateway connection closed: %w", c.err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle calls switch.toggle.
func (c *Client) Toggle(ctx context.Context, id string) (ToggleResponse, error) {
	var out ToggleResponse
	err := c.Call(ctx, "switch.toggle", switchIDRequest{ID: id}, &out)
	return out, err
}

// List calls switch.list.
func (c *Client) List(ctx context.Context) ([]domain.SwitchSnapshot, error) {
	var out []domain.SwitchSnapshot
	err := c.Call(ctx, "switch.list", nil, &out)
	return out, err
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
