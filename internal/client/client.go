// Package client is a thin Go wrapper over the tuple-space wire protocol,
// used by tuplectl and by end-to-end tests.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
	"github.com/dantte-lp/tuplespaced/internal/wire"
)

// Client holds one open connection to a tuple-space daemon. Not safe for
// concurrent use by multiple goroutines: the wire protocol is strictly
// request/response per connection, so callers wanting concurrency should
// open multiple Clients.
type Client struct {
	conn *websocket.Conn
	id   uuid.UUID
}

// Dial opens a WebSocket connection to the daemon at url (e.g.
// "ws://localhost:7070/ts"). Each Client is assigned a random correlation
// ID, returned by ID, that callers can fold into their own log lines to
// trace a single connection's requests without the wire protocol itself
// carrying any such identifier.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn, id: uuid.New()}, nil
}

// ID returns this connection's correlation identifier.
func (c *Client) ID() uuid.UUID { return c.id }

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Out inserts tuple into the space. Returns the domain error corresponding
// to a non-success wire response, or nil on "NoError".
func (c *Client) Out(tuple tuplespace.Tuple) error {
	if err := c.sendOperation(wire.OpOut, tuple); err != nil {
		return err
	}
	return c.readStatus()
}

// In performs a destructive, non-blocking read: it removes and returns every
// tuple matching template, or ErrNoMatchingTuple if none currently match.
func (c *Client) In(template tuplespace.Tuple) ([]tuplespace.Tuple, error) {
	return c.read(wire.OpInNonBl, template)
}

// Rd performs a non-destructive, non-blocking read.
func (c *Client) Rd(template tuplespace.Tuple) ([]tuplespace.Tuple, error) {
	return c.read(wire.OpRdNonBl, template)
}

// InBlocking performs a destructive, blocking read: it waits until a
// matching tuple appears, then removes and returns every match.
func (c *Client) InBlocking(template tuplespace.Tuple) ([]tuplespace.Tuple, error) {
	return c.read(wire.OpInBl, template)
}

// RdBlocking performs a non-destructive, blocking read.
func (c *Client) RdBlocking(template tuplespace.Tuple) ([]tuplespace.Tuple, error) {
	return c.read(wire.OpRdBl, template)
}

func (c *Client) read(kind wire.OperationKind, template tuplespace.Tuple) ([]tuplespace.Tuple, error) {
	if err := c.sendOperation(kind, template); err != nil {
		return nil, err
	}

	payload, err := c.readPayload()
	if err != nil {
		return nil, err
	}

	if err := c.readStatus(); err != nil {
		return nil, err
	}

	tuples := make([]tuplespace.Tuple, len(payload))
	for i, wt := range payload {
		t, err := wt.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode tuple %d: %w", i, err)
		}
		tuples[i] = t
	}

	return tuples, nil
}

func (c *Client) sendOperation(kind wire.OperationKind, tuple tuplespace.Tuple) error {
	data, err := wire.MarshalOperation(wire.Operation{Kind: kind, Tuple: tuple})
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write operation: %w", err)
	}
	return nil
}

func (c *Client) readPayload() ([]wire.Tuple, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read payload frame: %w", err)
	}

	// A non-matching read short-circuits to a single status frame rather
	// than a payload-then-status pair; detect that by trying to decode the
	// frame as the bare status string first.
	var status string
	if err := json.Unmarshal(data, &status); err == nil {
		return nil, domainErrorFromWire(wire.Error(status))
	}

	var tuples []wire.Tuple
	if err := json.Unmarshal(data, &tuples); err != nil {
		return nil, fmt.Errorf("decode payload frame: %w", err)
	}
	return tuples, nil
}

func (c *Client) readStatus() error {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read status frame: %w", err)
	}

	var status string
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decode status frame: %w", err)
	}

	return domainErrorFromWire(wire.Error(status))
}

// domainErrorFromWire maps a wire status string back to a domain error, or
// nil for "NoError". Unrecognized values map to a generic internal error so
// callers are never silently told an operation succeeded when it did not.
func domainErrorFromWire(status wire.Error) error {
	switch status {
	case wire.ErrorNone:
		return nil
	case wire.ErrorTupleAlreadyPresent:
		return tuplespace.ErrTupleAlreadyPresent
	case wire.ErrorTupleNotOnlyData:
		return tuplespace.ErrTupleNotOnlyData
	case wire.ErrorTupleOnlyData:
		return tuplespace.ErrTupleOnlyData
	case wire.ErrorNoMatchingTuple:
		return tuplespace.ErrNoMatchingTuple
	default:
		return fmt.Errorf("tuplespace client: daemon reported internal error (%q)", status)
	}
}
