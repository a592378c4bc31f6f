package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultChunkInterval is how often buffered PCM is flushed to the consumer.
const DefaultChunkInterval = 250 * time.Millisecond

const readBufferSize = 4096

var errHandleStopped = errors.New("capture handle is stopped")

// device is an open microphone producing raw s16le PCM.
type device interface {
	io.Reader
	Close() error
}

// chunkedHandle reads a device continuously and flushes the accumulated
// bytes once per interval while streaming. Audio read while paused is
// discarded.
type chunkedHandle struct {
	dev      device
	interval time.Duration
	log      zerolog.Logger
	onStop   func()

	mu      sync.Mutex
	emit    func([]byte)
	pending []byte
	stopped bool

	// emitMu is held for the duration of every emit call.
	emitMu sync.Mutex

	quit     chan struct{}
	done     chan struct{}
	readDone chan struct{}
	failed   chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func newChunkedHandle(dev device, interval time.Duration, log zerolog.Logger, onStop func()) *chunkedHandle {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	h := &chunkedHandle{
		dev:      dev,
		interval: interval,
		log:      log,
		onStop:   onStop,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		failed:   make(chan struct{}),
	}
	go h.readLoop()
	go h.flushLoop()
	return h
}

func (h *chunkedHandle) Stream(emit func(chunk []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return errHandleStopped
	}
	h.emit = emit
	h.pending = nil
	return nil
}

func (h *chunkedHandle) Pause() {
	h.mu.Lock()
	h.emit = nil
	h.pending = nil
	h.mu.Unlock()

	// Wait out an in-flight emit.
	h.emitMu.Lock()
	h.emitMu.Unlock()
}

func (h *chunkedHandle) Stop() error {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		h.Pause()

		close(h.quit)
		h.stopErr = h.dev.Close()
		<-h.done
		<-h.readDone
		if h.onStop != nil {
			h.onStop()
		}
	})
	return h.stopErr
}

// Failed is closed when the device stops producing data on its own. The
// handle is released and cannot stream again.
func (h *chunkedHandle) Failed() <-chan struct{} {
	return h.failed
}

func (h *chunkedHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *chunkedHandle) readLoop() {
	defer close(h.readDone)
	buf := make([]byte, readBufferSize)
	for {
		n, err := h.dev.Read(buf)
		if n > 0 {
			h.mu.Lock()
			if h.emit != nil {
				h.pending = append(h.pending, buf[:n]...)
			}
			h.mu.Unlock()
		}
		if err != nil {
			select {
			case <-h.quit:
			default:
				h.fail(err)
			}
			return
		}
	}
}

func (h *chunkedHandle) fail(err error) {
	h.log.Warn().Err(err).Msg("audio device stopped producing data")
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	close(h.failed)
	// Stop waits for this goroutine to exit.
	go func() { _ = h.Stop() }()
}

func (h *chunkedHandle) flushLoop() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			h.flush()
		}
	}
}

func (h *chunkedHandle) flush() {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	chunk, emit := h.pending, h.emit
	h.pending = nil
	h.mu.Unlock()

	if emit == nil || len(chunk) == 0 {
		return
	}
	emit(chunk)
}
