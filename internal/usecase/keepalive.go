package usecase

import (
	"sync"
	"time"
)

const defaultKeepAliveInterval = 10 * time.Second

// keepAliveTimer invokes tick at a fixed interval until stopped. stop is
// synchronous: once it returns no tick is running or will run.
type keepAliveTimer struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func startKeepAlive(interval time.Duration, tick func()) *keepAliveTimer {
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}
	t := &keepAliveTimer{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-ticker.C:
				select {
				case <-t.quit:
					return
				default:
				}
				tick()
			}
		}
	}()
	return t
}

func (t *keepAliveTimer) stop() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.quit) })
	<-t.done
}
