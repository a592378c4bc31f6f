package usecase

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

type activeSession struct {
	id     string
	cfg    domain.SessionConfig
	done   <-chan struct{}
	cancel context.CancelFunc
	log    zerolog.Logger

	// Guarded by SessionController.mu.
	state     domain.SessionState
	conn      ports.Connection
	opened    bool
	keepAlive *keepAliveTimer

	// sending gates the capture and keep-alive goroutines, which never take
	// the controller lock. conn is set before sending is enabled.
	sending atomic.Bool
}

func (s *activeSession) forward(chunk []byte) bool {
	if !s.sending.Load() {
		return false
	}
	s.conn.Send(chunk)
	return true
}

func (s *activeSession) ping() bool {
	if !s.sending.Load() {
		return false
	}
	s.conn.KeepAlive()
	return true
}
