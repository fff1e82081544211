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

package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	_defaultBaseSleepTime = 100 * time.Millisecond
	_defaultMaxSleepTime  = time.Second
	_defaultMaxAttempts   = 5
)

// Retry is a policy that retries a set number of times with increasing sleep
// time between retries, up to a maximum sleep time. It is handed to the
// coordination client as is; name resolution never retries.
type Retry struct {
	BaseSleepTime time.Duration `mapstructure:"base-sleep-time"`
	MaxSleepTime  time.Duration `mapstructure:"max-sleep-time"`
	MaxAttempts   int           `mapstructure:"max-attempts"`
}

// Adjust fills in defaults for unset fields.
func (r *Retry) Adjust() {
	if r.BaseSleepTime == 0 {
		r.BaseSleepTime = _defaultBaseSleepTime
	}
	if r.MaxSleepTime == 0 {
		r.MaxSleepTime = _defaultMaxSleepTime
	}
}

// Validate checks that the sleep times are positive and ordered, and that
// the number of attempts is not negative.
func (r *Retry) Validate() error {
	if r.BaseSleepTime <= 0 || r.MaxSleepTime <= 0 {
		return errors.WithMessagef(ErrInvalidRetry, "sleep times must be positive, got %s and %s",
			r.BaseSleepTime, r.MaxSleepTime)
	}
	if r.BaseSleepTime > r.MaxSleepTime {
		return errors.WithMessagef(ErrInvalidRetry, "base sleep time %s exceeds max sleep time %s",
			r.BaseSleepTime, r.MaxSleepTime)
	}
	if r.MaxAttempts < 0 {
		return errors.WithMessagef(ErrInvalidRetry, "negative max attempts %d", r.MaxAttempts)
	}
	return nil
}

// NewBackOff returns a bounded exponential backoff for this policy. It
// returns backoff.Stop after MaxAttempts retries.
func (r *Retry) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseSleepTime
	b.MaxInterval = r.MaxSleepTime
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(r.MaxAttempts))
}
