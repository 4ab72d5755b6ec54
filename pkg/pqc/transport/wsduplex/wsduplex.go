// Package wsduplex adapts a gorilla/websocket connection to
// channel.DuplexTransport: one binary WebSocket message per Send/Recv
// call, with background read/write loops so a slow peer never blocks a
// concurrent Send and Recv on the same connection.
package wsduplex

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Config configures the underlying WebSocket connection.
type Config struct {
	URL              string
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
}

// DefaultConfig returns sane defaults for Dial.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		MaxMessageSize:   64 << 20,
	}
}

// Transport is a channel.DuplexTransport backed by a WebSocket
// connection.
type Transport struct {
	cfg  Config
	conn *websocket.Conn

	recvChan chan []byte
	sendChan chan sendRequest
	errChan  chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	connected bool
}

type sendRequest struct {
	data []byte
	done chan error
}

// Dial establishes a WebSocket connection and starts the background
// read/write loops.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "wsduplex: invalid url", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig:  cfg.TLSConfig,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := &net.Dialer{Timeout: cfg.HandshakeTimeout}
			return d.DialContext(ctx, network, addr)
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "wsduplex: dial failed", err)
	}
	return newTransport(cfg, conn), nil
}

// Accept wraps an already-upgraded server-side WebSocket connection.
func Accept(cfg Config, conn *websocket.Conn) *Transport {
	return newTransport(cfg, conn)
}

func newTransport(cfg Config, conn *websocket.Conn) *Transport {
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	tctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		cfg:       cfg,
		conn:      conn,
		recvChan:  make(chan []byte, 64),
		sendChan:  make(chan sendRequest, 64),
		errChan:   make(chan error, 8),
		ctx:       tctx,
		cancel:    cancel,
		connected: true,
	}
	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	if cfg.PingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop()
	}
	return t
}

// Send implements channel.DuplexTransport.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	req := sendRequest{data: append([]byte(nil), msg...), done: make(chan error, 1)}
	select {
	case t.sendChan <- req:
	case <-ctx.Done():
		return pqcerr.Wrap(pqcerr.Timeout, "wsduplex: send deadline exceeded", ctx.Err())
	case <-t.ctx.Done():
		return pqcerr.New(pqcerr.TransportClosed, "wsduplex: transport closed")
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return pqcerr.Wrap(pqcerr.Timeout, "wsduplex: send deadline exceeded", ctx.Err())
	case <-t.ctx.Done():
		return pqcerr.New(pqcerr.TransportClosed, "wsduplex: transport closed")
	}
}

// Recv implements channel.DuplexTransport.
func (t *Transport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-t.recvChan:
		if !ok {
			return nil, pqcerr.New(pqcerr.TransportClosed, "wsduplex: connection closed")
		}
		return msg, nil
	case err := <-t.errChan:
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "wsduplex: transport error", err)
	case <-ctx.Done():
		return nil, pqcerr.Wrap(pqcerr.Timeout, "wsduplex: recv deadline exceeded", ctx.Err())
	case <-t.ctx.Done():
		return nil, pqcerr.New(pqcerr.TransportClosed, "wsduplex: transport closed")
	}
}

// Close implements channel.DuplexTransport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	t.mu.Unlock()

	t.cancel()

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing")
	_ = t.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	// readLoop's blocking ReadMessage only returns once the connection is
	// closed, so close it before waiting on the loops to exit.
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		if t.cfg.ReadTimeout > 0 {
			_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
		}
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case t.errChan <- fmt.Errorf("read error: %w", err):
				default:
				}
			}
			close(t.recvChan)
			return
		}
		select {
		case t.recvChan <- data:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case req := <-t.sendChan:
			if t.cfg.WriteTimeout > 0 {
				_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			}
			err := t.conn.WriteMessage(websocket.BinaryMessage, req.data)
			if err != nil {
				err = pqcerr.Wrap(pqcerr.TransportClosed, "wsduplex: write failed", err)
			}
			req.done <- err
			if err != nil {
				return
			}
		}
	}
}

func (t *Transport) pingLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				select {
				case t.errChan <- fmt.Errorf("ping error: %w", err):
				default:
				}
				return
			}
		}
	}
}
