// Package emergency implements the fail-closed emergency stop. A sentinel
// file on disk halts all cleanup activity; once the stop is observed it
// latches and stays latched until explicitly reset, even if the file is
// removed out from under us.
package emergency

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const DefaultInterval = 5 * time.Second

type Stop struct {
	path     string
	interval time.Duration
	latched  atomic.Bool
}

func New(path string, interval time.Duration) *Stop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Stop{path: path, interval: interval}
}

func (s *Stop) Path() string { return s.path }

// Active reports whether the sentinel file currently exists. A stat error
// other than not-exist counts as active: when we cannot prove the stop is
// absent, we assume it is present.
func (s *Stop) Active() bool {
	_, err := os.Stat(s.path)
	if err == nil {
		s.latched.Store(true)
		return true
	}
	return !os.IsNotExist(err)
}

// Latched reports whether the stop was ever observed active. Reliable even
// if the sentinel is removed before checking.
func (s *Stop) Latched() bool {
	return s.latched.Load()
}

// Reason returns the sentinel file contents, empty if unreadable.
func (s *Stop) Reason() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Activate writes the sentinel with the given reason.
func (s *Stop) Activate(reason string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, []byte(reason), 0644); err != nil {
		return err
	}
	s.latched.Store(true)
	return nil
}

// Reset removes the sentinel and clears the latch. This is the only way to
// unlatch a stop.
func (s *Stop) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	s.latched.Store(false)
	return nil
}

// Watch polls for the sentinel and cancels the returned context the moment
// it appears. The initial check runs before the ticker so a pre-existing
// sentinel cancels immediately.
func (s *Stop) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	watchCtx, cancel := context.WithCancel(ctx)

	if s.Active() {
		cancel()
		return watchCtx, cancel
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if s.Active() {
					cancel()
					return
				}
			}
		}
	}()

	return watchCtx, cancel
}
