// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/openbug-ai/cli/lib/codec"
	"github.com/openbug-ai/cli/lib/netutil"
)

// ErrClosed is returned by Client methods once the connection is gone.
var ErrClosed = errors.New("relay: connection closed")

// ProtocolError is an error frame sent by the relay in reply to a
// request.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "relay: " + e.Message
}

// ClientOptions configures Dial.
type ClientOptions struct {
	// Format selects the frame encoding. Default: codec.JSON.
	Format codec.Format

	// Logger receives dropped-frame and read failure events. Nil
	// discards.
	Logger *slog.Logger
}

// Client is a connection to the relay. Requests that expect a reply
// are serialized; StreamLogs is fire-and-forget and never waits.
type Client struct {
	conn   *websocket.Conn
	format codec.Format
	logger *slog.Logger

	// requestMutex serializes request/reply exchanges.
	requestMutex sync.Mutex
	// writeMutex serializes frame writes.
	writeMutex sync.Mutex

	replies chan Reply
	updates chan Reply

	done    chan struct{}
	doneErr error
}

// Dial connects to the relay at url.
func Dial(ctx context.Context, url string, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", url, err)
	}
	conn.SetReadLimit(maxFrameSize)

	client := &Client{
		conn:    conn,
		format:  options.Format,
		logger:  logger,
		replies: make(chan Reply, 16),
		updates: make(chan Reply, 64),
		done:    make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Done is closed when the connection ends. Err then reports why.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, or nil while it is
// open or after a normal closure.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.doneErr
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.Read(context.Background())
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.doneErr = err
			}
			return
		}
		format := codec.JSON
		if messageType == websocket.MessageBinary {
			format = codec.CBOR
		}

		var reply Reply
		if err := codec.Unmarshal(format, data, &reply); err != nil {
			c.logger.Warn("malformed relay frame", "error", err)
			continue
		}

		target := c.replies
		if reply.Type == TypeProjectUpdate {
			target = c.updates
		}
		select {
		case target <- reply:
		default:
			c.logger.Warn("dropping relay frame, consumer too slow", "type", reply.Type)
		}
	}
}

func (c *Client) write(ctx context.Context, v any) error {
	data, err := codec.Marshal(c.format, v)
	if err != nil {
		return err
	}
	messageType := websocket.MessageText
	if c.format == codec.CBOR {
		messageType = websocket.MessageBinary
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if err := c.conn.Write(ctx, messageType, data); err != nil {
		if netutil.IsExpectedCloseError(err) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// exchange sends v and waits for a reply of type want that accept
// approves (any reply of that type when accept is nil). An error frame
// fails the exchange; other replies (late answers to an abandoned
// request) are skipped.
func (c *Client) exchange(ctx context.Context, v any, want string, accept func(Reply) bool) (Reply, error) {
	c.requestMutex.Lock()
	defer c.requestMutex.Unlock()

	if err := c.write(ctx, v); err != nil {
		return Reply{}, err
	}
	for {
		select {
		case reply := <-c.replies:
			switch {
			case reply.Type == want && (accept == nil || accept(reply)):
				return reply, nil
			case reply.Type == TypeError:
				return Reply{}, &ProtocolError{Message: reply.Message}
			}
			c.logger.Debug("skipping unexpected relay reply", "type", reply.Type, "want", want)
		case <-c.done:
			return Reply{}, ErrClosed
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
}

// Register joins a project. It returns the number of services the
// project holds afterwards.
func (c *Client) Register(ctx context.Context, registration Registration) (int, error) {
	reply, err := c.exchange(ctx, struct {
		Type    string       `json:"type"`
		Project Registration `json:"project"`
	}{TypeRegister, registration}, TypeRegisterAck, nil)
	if err != nil {
		return 0, err
	}
	return reply.TotalRegisteredServices, nil
}

// StreamLogs appends chunk to the instance's relay-side buffer.
func (c *Client) StreamLogs(ctx context.Context, windowID int64, chunk string) error {
	return c.write(ctx, request{Type: TypeStreamLogs, WindowID: windowID, Logs: chunk})
}

// FetchProjects returns the project's registered services.
func (c *Client) FetchProjects(ctx context.Context, projectID string) ([]Service, error) {
	reply, err := c.exchange(ctx, request{Type: TypeFetchProjects, ID: projectID}, TypeFetchProjectsAck, nil)
	if err != nil {
		return nil, err
	}
	return nonNil(reply.Projects), nil
}

// FetchLogs returns the instance's relay-side buffer, "" when there
// is none.
func (c *Client) FetchLogs(ctx context.Context, windowID int64) (string, error) {
	reply, err := c.exchange(ctx, request{Type: TypeFetchLogs, WindowID: windowID}, TypeFetchLogsAck,
		func(reply Reply) bool { return reply.WindowID == windowID })
	if err != nil {
		return "", err
	}
	return reply.Logs, nil
}

// Subscribe follows the project's membership. It returns the current
// snapshot, and a channel carrying the full membership after every
// change. The channel is closed when the connection ends. Call it at
// most once per Client.
func (c *Client) Subscribe(ctx context.Context, projectID string) ([]Service, <-chan []Service, error) {
	c.requestMutex.Lock()
	defer c.requestMutex.Unlock()

	if err := c.write(ctx, request{Type: TypeSubscribeUpdates, ID: projectID}); err != nil {
		return nil, nil, err
	}

	var snapshot []Service
	select {
	case reply := <-c.updates:
		snapshot = nonNil(reply.Projects)
	case <-c.done:
		return nil, nil, ErrClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	changes := make(chan []Service, 16)
	go func() {
		defer close(changes)
		for {
			select {
			case reply := <-c.updates:
				if reply.ProjectID != "" && projectID != "" && reply.ProjectID != projectID {
					continue
				}
				select {
				case changes <- nonNil(reply.Projects):
				case <-c.done:
					return
				}
			case <-c.done:
				return
			}
		}
	}()
	return snapshot, changes, nil
}

func nonNil(services []Service) []Service {
	if services == nil {
		return []Service{}
	}
	return services
}
