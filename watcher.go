// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zkensemble

import (
	"context"
	"time"

	"github.com/bufbuild/zkensemble/internal"
	"go.uber.org/zap"
)

const defaultPollInterval = time.Minute

// Receiver is notified by a Watcher when the ensemble changes.
type Receiver interface {
	// OnEnsembleChange is called with the first connection string the
	// watcher computes, and again every time the connection string differs
	// from the one last reported. It is never called concurrently.
	OnEnsembleChange(connectionString string)
}

// ReceiverFunc is an adapter that allows the use of an ordinary function as
// a Receiver.
type ReceiverFunc func(connectionString string)

// OnEnsembleChange calls fn(connectionString).
func (fn ReceiverFunc) OnEnsembleChange(connectionString string) {
	fn(connectionString)
}

// WatcherOption is an option used to customize a Watcher.
type WatcherOption interface {
	applyToWatcher(*watcherOptions)
}

// WithPollInterval configures how often a Watcher resolves the ensemble.
// The default is one minute.
func WithPollInterval(interval time.Duration) WatcherOption {
	return watcherOptionFunc(func(opts *watcherOptions) {
		opts.interval = interval
	})
}

// WithWatcherLogger configures the logger used by a Watcher. By default,
// nothing is logged.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return watcherOptionFunc(func(opts *watcherOptions) {
		opts.logger = logger
	})
}

// Watcher periodically resolves an ensemble and reports changes to the
// connection string. Because the connection string is canonical, DNS
// servers that rotate the order of their records do not cause spurious
// changes. Each poll is a fresh resolution; only the last reported string
// is remembered.
type Watcher struct {
	provider   *ResolvingProvider
	receiver   Receiver
	interval   time.Duration
	logger     *zap.Logger
	clock      internal.Clock
	cancel     context.CancelFunc
	refreshCh  chan struct{}
	doneSignal chan struct{}
}

// NewWatcher creates a Watcher for provider. It is not running until Start
// is called.
func NewWatcher(provider *ResolvingProvider, receiver Receiver, options ...WatcherOption) *Watcher {
	var opts watcherOptions
	for _, opt := range options {
		opt.applyToWatcher(&opts)
	}
	opts.applyDefaults()
	return &Watcher{
		provider:   provider,
		receiver:   receiver,
		interval:   opts.interval,
		logger:     opts.logger,
		clock:      internal.NewRealClock(),
		refreshCh:  make(chan struct{}, 1),
		doneSignal: make(chan struct{}),
	}
}

// Start begins polling in a new goroutine. The first resolution happens
// immediately. Polling stops when ctx is cancelled or Close is called.
// Start must be called at most once.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Refresh asks the watcher to resolve the ensemble now instead of waiting
// for the poll interval to elapse. It does not block.
func (w *Watcher) Refresh() {
	select {
	case w.refreshCh <- struct{}{}:
	default:
	}
}

// Close stops the watcher and waits for its goroutine to exit. No calls to
// the Receiver are made after Close returns.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.doneSignal
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneSignal)
	defer w.cancel()

	var (
		timer   internal.Timer
		last    string
		started bool
	)
	for {
		current := w.provider.ConnectionStringContext(ctx)
		if ctx.Err() != nil {
			// Lookups were cut short; current is made of fallbacks.
			return
		}
		switch {
		case !started || current != last:
			w.logger.Info("ensemble changed",
				zap.String("previous", last), zap.String("current", current))
			w.receiver.OnEnsembleChange(current)
			last, started = current, true
		default:
			w.logger.Debug("ensemble unchanged", zap.String("current", current))
		}

		if timer == nil {
			timer = w.clock.NewTimer(w.interval)
		} else {
			timer.Reset(w.interval)
		}

		select {
		case <-ctx.Done():
			internal.StopTimer(timer)
			return
		case <-w.refreshCh:
			// Reset requires a stopped timer with a drained channel.
			internal.StopTimer(timer)
		case <-timer.Chan():
		}
	}
}

type watcherOptionFunc func(*watcherOptions)

func (f watcherOptionFunc) applyToWatcher(opts *watcherOptions) {
	f(opts)
}

type watcherOptions struct {
	interval time.Duration
	logger   *zap.Logger
}

func (opts *watcherOptions) applyDefaults() {
	if opts.interval <= 0 {
		opts.interval = defaultPollInterval
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
}
