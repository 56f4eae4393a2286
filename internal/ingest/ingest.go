// Package ingest maintains the long-lived WebSocket connection to the
// firehose endpoint, resuming from a cursor on reconnect and handing
// each received frame to a Handler (component O's dispatcher).
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atscope/modguard/pkg/mlog"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
)

// ConnectTimeout bounds TCP connect + TLS handshake + WebSocket upgrade.
const ConnectTimeout = 30 * time.Second

// IdleReadTimeout is reset on every received frame; exceeding it without
// a frame fails the connection the same as a socket error.
const IdleReadTimeout = 30 * time.Second

// ReconnectDelay is the fixed sleep between a failed connection and the
// next attempt. Unlike a generic client's exponential backoff, the
// firehose endpoint expects steady reconnect pressure with cursor
// resume, so the delay does not grow.
const ReconnectDelay = 10 * time.Second

// CursorSource supplies the last durably-recorded sequence number so a
// reconnect can resume without reprocessing or gapping, per 4.E's
// cursor lifecycle.
type CursorSource interface {
	Cursor() int64
}

// Handler processes one received frame. Returning an error only logs;
// it never tears down the connection (a single malformed frame must
// not lose the rest of the session).
type Handler interface {
	HandleFrame(ctx context.Context, data []byte) error
}

// Client owns the WebSocket connection lifecycle: connect, upgrade,
// read loop, reconnect-with-cursor-resume on any failure.
type Client struct {
	endpoint string
	cursor   CursorSource
	handler  Handler
	dialer   *websocket.Dialer
	compress bool
	decoder  *zstd.Decoder
}

// Config selects the endpoint and optional compressed-frame support.
type Config struct {
	Endpoint string
	Compress bool
}

// New constructs a Client. cursor and handler must be non-nil.
func New(cfg Config, cursor CursorSource, handler Handler) (*Client, error) {
	c := &Client{
		endpoint: cfg.Endpoint,
		cursor:   cursor,
		handler:  handler,
		dialer:   &websocket.Dialer{HandshakeTimeout: ConnectTimeout},
		compress: cfg.Compress,
	}
	if cfg.Compress {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("ingest: zstd decoder: %w", err)
		}
		c.decoder = dec
	}
	return c, nil
}

// Run connects and reads frames until ctx is cancelled, reconnecting
// with a fixed delay and the latest cursor after any failure.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectAndConsume(ctx); err != nil {
			mlog.Warnf("ingest: connection failed: %v", err)
		}

		select {
		case <-time.After(ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("ingest: bad endpoint: %w", err)
	}
	if cursor := c.cursor.Cursor(); cursor > 0 {
		q := u.Query()
		q.Set("cursor", strconv.FormatInt(cursor, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) connectAndConsume(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	mlog.Infof("ingest: connecting to %s", target)
	conn, _, err := c.dialer.DialContext(dialCtx, target, http.Header{})
	if err != nil {
		return fmt.Errorf("ingest: dial: %w", err)
	}
	defer conn.Close()
	mlog.Info("ingest: connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(IdleReadTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ingest: read: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		if c.compress {
			if decompressed, derr := c.decoder.DecodeAll(data, nil); derr == nil {
				data = decompressed
			}
		}

		if err := c.handler.HandleFrame(ctx, data); err != nil {
			mlog.Warnf("ingest: frame handling error: %v", err)
		}
	}
}
