package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livescribe/internal/domain"
	"livescribe/internal/observability/logging"
	"livescribe/internal/ports"
)

const (
	defaultAPIBaseURL  = "https://api.deepgram.com/v1"
	defaultFinishGrace = 4 * time.Second
	writeTimeout       = 10 * time.Second
	outboundBuffer     = 64
)

var (
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIBaseURL  string
	SampleRate  int
	Channels    int
	FinishGrace time.Duration
	Dialer      *websocket.Dialer
}

// Provider implements ports.TranscriptionProvider for Deepgram live streaming.
type Provider struct {
	cfg Config
	log zerolog.Logger
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FinishGrace <= 0 {
		cfg.FinishGrace = defaultFinishGrace
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Provider{cfg: cfg, log: logging.WithComponent("deepgram")}
}

// Open returns immediately; the websocket is dialed in the background and
// Opened is delivered once it is established.
func (p *Provider) Open(ctx context.Context, apiKey string, cfg domain.SessionConfig, onEvent func(domain.ConnectionEvent)) (ports.Connection, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("deepgram api key is empty")
	}
	if !cfg.Valid() {
		return nil, fmt.Errorf("invalid session config: model=%q language=%q", cfg.Model, cfg.Language)
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	c := &connection{
		log:       p.log.With().Str("model", cfg.Model).Str("language", cfg.Language).Logger(),
		onEvent:   onEvent,
		grace:     p.cfg.FinishGrace,
		out:       make(chan outboundFrame, outboundBuffer),
		finishing: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.run(ctx, p.cfg.Dialer, wsURL, headers)
	return c, nil
}

type outboundFrame struct {
	messageType int
	data        []byte
}

type connection struct {
	log     zerolog.Logger
	onEvent func(domain.ConnectionEvent)
	grace   time.Duration

	// ws is written once by run before opened is set.
	ws *websocket.Conn

	mu       sync.Mutex
	opened   bool
	finished bool

	out        chan outboundFrame
	finishing  chan struct{}
	finishOnce sync.Once
	done       chan struct{}

	localClose atomic.Bool
}

// Send queues a binary audio frame.
func (c *connection) Send(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.enqueue(outboundFrame{
		messageType: websocket.BinaryMessage,
		data:        append([]byte(nil), chunk...),
	}, "audio")
}

// KeepAlive queues a keep-alive control message.
func (c *connection) KeepAlive() {
	c.enqueue(outboundFrame{messageType: websocket.TextMessage, data: keepAliveMessage}, "keepalive")
}

// Finish asks the backend to flush and close. Closed is always delivered
// afterwards, at the latest once the grace period has elapsed.
func (c *connection) Finish() {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.finished = true
		close(c.finishing)
		c.mu.Unlock()
	})
}

func (c *connection) enqueue(frame outboundFrame, what string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened || c.finished {
		c.log.Warn().Str("frame", what).Msg("connection not open, dropping frame")
		return
	}
	select {
	case c.out <- frame:
	default:
		c.log.Warn().Str("frame", what).Msg("outbound buffer full, dropping frame")
	}
}

// run owns the socket: it dials, delivers every event and reads until the
// socket closes. Closed is its last action.
func (c *connection) run(ctx context.Context, dialer *websocket.Dialer, wsURL string, headers http.Header) {
	defer c.emit(domain.ClosedEvent())

	dialCtx, cancelDial := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.finishing:
			cancelDial()
		case <-dialCtx.Done():
		}
	}()

	ws, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	cancelDial()
	if err != nil {
		if c.isFinishing() || ctx.Err() != nil {
			c.log.Debug().Err(err).Msg("dial aborted")
			close(c.done)
			return
		}
		message := err.Error()
		if resp != nil {
			message = fmt.Sprintf("%s (%s)", message, resp.Status)
		}
		c.log.Error().Str("error", message).Msg("failed to connect to deepgram websocket")
		close(c.done)
		c.emit(domain.ErrorEvent("failed to connect: " + message))
		return
	}

	c.mu.Lock()
	c.ws = ws
	aborted := c.finished
	c.opened = !aborted
	c.mu.Unlock()
	if aborted {
		c.log.Debug().Msg("finished while dialing, closing socket")
		close(c.done)
		_ = ws.Close()
		return
	}

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.closeLocally()
		case <-c.done:
		}
	}()

	c.log.Debug().Msg("deepgram websocket open")
	c.emit(domain.OpenedEvent())
	c.readLoop()

	close(c.done)
	_ = ws.Close()
}

func (c *connection) readLoop() {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}

		event, ok, err := decodeEvent(payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		if !ok {
			continue
		}
		c.emit(event)
		if event.Kind == domain.EventError {
			c.closeLocally()
			return
		}
	}
}

func (c *connection) readFailed(err error) {
	if c.localClose.Load() || c.isFinishing() {
		c.log.Debug().Err(err).Msg("socket closed")
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Debug().Err(err).Msg("socket closed by backend")
		return
	}
	c.log.Error().Err(err).Msg("deepgram websocket failed")
	c.emit(domain.ErrorEvent(err.Error()))
}

func (c *connection) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			if !c.write(frame) {
				return
			}
		case <-c.finishing:
			c.drain()
			c.write(outboundFrame{messageType: websocket.TextMessage, data: closeStreamMessage})
			c.awaitClose()
			return
		case <-c.done:
			return
		}
	}
}

// drain flushes frames queued before Finish. Nothing is queued afterwards.
func (c *connection) drain() {
	for {
		select {
		case frame := <-c.out:
			if !c.write(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *connection) awaitClose() {
	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.log.Warn().Dur("grace", c.grace).Msg("backend did not close in time, closing socket")
		c.closeLocally()
	}
}

func (c *connection) write(frame outboundFrame) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(frame.messageType, frame.data); err != nil {
		c.log.Warn().Err(err).Msg("failed to write frame")
		// Unblocks the reader, which reports the failure.
		_ = c.ws.Close()
		return false
	}
	return true
}

func (c *connection) closeLocally() {
	c.localClose.Store(true)
	_ = c.ws.Close()
}

func (c *connection) isFinishing() bool {
	select {
	case <-c.finishing:
		return true
	default:
		return false
	}
}

func (c *connection) emit(event domain.ConnectionEvent) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}
