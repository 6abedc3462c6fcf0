package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborpoint/policykit/clock"
	"github.com/harborpoint/policykit/credentials"
	"github.com/harborpoint/policykit/observe"
	"github.com/harborpoint/policykit/reconcile"
)

// Handler consumes one decoded push frame. A non-nil error marks the frame
// malformed; it is logged and the connection keeps reading.
type Handler func(msg reconcile.Message) error

// Config configures the Listener.
type Config struct {
	// URL is the WebSocket endpoint of the entity event stream.
	URL string

	// Handler receives every frame, typically reconcile.Reconciler's
	// OnPushMessage.
	Handler Handler

	// Dialer is the WebSocket dialer. Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Credentials supplies the bearer token for the connection handshake.
	// Optional; connections are made unauthenticated without it.
	Credentials credentials.Provider

	// ReconnectBase is the first reconnect delay. Default: 1s
	ReconnectBase time.Duration

	// ReconnectMax caps the reconnect delay. Default: 30s
	ReconnectMax time.Duration

	// Logger receives connection events. Default: observe.NopLogger().
	Logger observe.Logger

	// Clock is the time source for reconnect backoff. Default: clock.Real().
	Clock clock.Clock
}

// Listener maintains a WebSocket connection to the push stream, decodes
// frames, and hands them to the handler. Lost connections are redialed with
// exponential backoff; a malformed frame never kills the connection.
type Listener struct {
	config Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	started   bool

	done chan struct{}

	logger observe.Logger
	clock  clock.Clock
}

// NewListener creates a new Listener. Start must be called to begin reading.
func NewListener(config Config) (*Listener, error) {
	if config.URL == "" {
		return nil, errors.New("push: URL is required")
	}
	if config.Handler == nil {
		return nil, errors.New("push: handler is required")
	}

	// Apply defaults
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.ReconnectBase <= 0 {
		config.ReconnectBase = time.Second
	}
	if config.ReconnectMax <= 0 {
		config.ReconnectMax = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Listener{
		config: config,
		dialer: config.Dialer,
		done:   make(chan struct{}),
		logger: config.Logger.WithComponent("push"),
		clock:  config.Clock,
	}, nil
}

// Start launches the connect-and-read loop. It returns immediately; frames
// flow to the handler from a background goroutine until Close or ctx
// cancellation.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := l.config.ReconnectBase
	for {
		if ctx.Err() != nil || l.isClosed() {
			return
		}

		conn, err := l.dial(ctx)
		if err != nil {
			l.logger.Warn(ctx, "push dial failed",
				observe.Field{Key: "error", Value: err.Error()},
				observe.Field{Key: "backoff_ms", Value: backoff.Milliseconds()},
			)
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, l.config.ReconnectMax)
			continue
		}
		backoff = l.config.ReconnectBase

		l.setConn(conn)
		l.logger.Info(ctx, "push stream connected")
		l.readLoop(ctx, conn)
		l.setConn(nil)
	}
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if l.config.Credentials != nil {
		token, err := l.config.Credentials.AccessToken(ctx)
		if err == nil && token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.config.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// readLoop reads frames until the connection drops. Frame-level problems
// (bad JSON, unknown entity types) are logged and skipped; only transport
// errors end the loop.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !l.isClosed() && ctx.Err() == nil {
				l.logger.Warn(ctx, "push stream lost",
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
			return
		}

		var msg reconcile.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn(ctx, "skipping undecodable push frame",
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}

		if err := l.config.Handler(msg); err != nil {
			l.logger.Warn(ctx, "skipping rejected push frame",
				observe.Field{Key: "entity_type", Value: msg.EntityType},
				observe.Field{Key: "entity_id", Value: msg.EntityID},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}

// sleep waits for the backoff to elapse. Reports false when the context was
// cancelled or the listener closed first.
func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	timer := l.clock.NewTimer(d)
	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

func (l *Listener) setConn(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.connected = conn != nil && !l.closed
	closed := l.closed
	l.mu.Unlock()

	// A Close that raced the dial found no connection to tear down.
	if closed && conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether the stream is currently up. Surfaced through the
// health checkers.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops the listener and waits for the read loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	started := l.started
	l.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-l.done
	}
	return nil
}
