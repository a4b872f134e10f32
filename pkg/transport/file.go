package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileFollower reads a telemetry capture file and, in follow mode, blocks
// at end-of-file until the file grows — live-tailing a log that a recorder
// is still appending to. Wakeups come from fsnotify write events, with a
// polling fallback since watch events can be dropped under load.
type FileFollower struct {
	f       *os.File
	watcher *fsnotify.Watcher
	ctx     context.Context
	follow  bool
	poll    time.Duration
}

type FollowOption func(*FileFollower)

// WithPollInterval sets the fallback polling interval used while waiting
// for the file to grow.
func WithPollInterval(d time.Duration) FollowOption {
	return func(ff *FileFollower) {
		if d > 0 {
			ff.poll = d
		}
	}
}

// OpenFile opens a finished capture for a plain decode pass; reads report
// io.EOF at the end of the file.
func OpenFile(path string) (*FileFollower, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open capture: %w", err)
	}
	return &FileFollower{f: f, ctx: context.Background()}, nil
}

// FollowFile opens a capture that is still being written. Reads block at
// end-of-file until more bytes arrive; cancelling ctx ends the stream with
// io.EOF so a decode pass finishes cleanly.
func FollowFile(ctx context.Context, path string, opts ...FollowOption) (*FileFollower, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open capture: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("transport: watch capture: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		_ = f.Close()
		return nil, fmt.Errorf("transport: watch capture: %w", err)
	}

	ff := &FileFollower{
		f:       f,
		watcher: watcher,
		ctx:     ctx,
		follow:  true,
		poll:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(ff)
	}
	return ff, nil
}

func (ff *FileFollower) Read(p []byte) (int, error) {
	for {
		n, err := ff.f.Read(p)
		if n > 0 || err == nil {
			return n, nil
		}
		if err != io.EOF || !ff.follow {
			return 0, err
		}
		if waitErr := ff.waitForGrowth(); waitErr != nil {
			return 0, waitErr
		}
	}
}

func (ff *FileFollower) waitForGrowth() error {
	timer := time.NewTimer(ff.poll)
	defer timer.Stop()
	for {
		select {
		case <-ff.ctx.Done():
			return io.EOF
		case ev, ok := <-ff.watcher.Events:
			if !ok {
				return io.EOF
			}
			if ev.Has(fsnotify.Write) {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return fmt.Errorf("transport: capture %s vanished while following", ev.Name)
			}
		case err, ok := <-ff.watcher.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("transport: watch capture: %w", err)
		case <-timer.C:
			// Poll: the file may have grown without a delivered event.
			return nil
		}
	}
}

func (ff *FileFollower) Close() error {
	if ff.watcher != nil {
		_ = ff.watcher.Close()
	}
	return ff.f.Close()
}
