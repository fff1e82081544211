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

// Package ensembletest provides a scripted [resolver.HostResolver] that is
// useful for testing code that resolves ensemble connect strings. Answers
// are declared per host name, and can be sequenced to simulate round-robin
// DNS that returns the same records in a different order on every query.
package ensembletest

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/bufbuild/zkensemble/resolver"
)

// Resolver is a deterministic stand-in for DNS. The zero value is not
// usable; create one with NewResolver. It is safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	hosts map[string]*script
}

var _ resolver.HostResolver = (*Resolver)(nil)

// NewResolver returns a Resolver with no scripted hosts. Every host
// that is not scripted fails as not found.
func NewResolver() *Resolver {
	return &Resolver{hosts: map[string]*script{}}
}

// Script declares the answers for one host. Each call to Return or Fail
// queues the answer for the next lookup of that host; once the queue is
// down to its last answer, that answer repeats.
type Script struct {
	resolver *Resolver
	host     string
}

type script struct {
	answers []answer
	calls   int
}

type answer struct {
	addresses []netip.Addr
	err       error
}

// On starts (or continues) the script for host.
func (r *Resolver) On(host string) *Script {
	return &Script{resolver: r, host: host}
}

// Return queues a successful lookup returning addresses, in the given
// order. It panics if any address is not a valid numeric address.
func (s *Script) Return(addresses ...string) *Script {
	parsed := make([]netip.Addr, len(addresses))
	for i, address := range addresses {
		parsed[i] = netip.MustParseAddr(address)
	}
	s.resolver.push(s.host, answer{addresses: parsed})
	return s
}

// Fail queues a lookup that fails as not found.
func (s *Script) Fail() *Script {
	return s.FailWith(notFound(s.host))
}

// FailWith queues a lookup that fails with err.
func (s *Script) FailWith(err error) *Script {
	s.resolver.push(s.host, answer{err: err})
	return s
}

// Calls returns the number of lookups made for host so far.
func (r *Resolver) Calls(host string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sc, ok := r.hosts[host]; ok {
		return sc.calls
	}
	return 0
}

// LookupHost implements resolver.HostResolver.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.hosts[host]
	if !ok {
		sc = &script{}
		r.hosts[host] = sc
	}
	sc.calls++
	if len(sc.answers) == 0 {
		return nil, notFound(host)
	}
	next := sc.answers[0]
	if len(sc.answers) > 1 {
		sc.answers = sc.answers[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	// Callers may sort the result in place.
	addresses := make([]netip.Addr, len(next.addresses))
	copy(addresses, next.addresses)
	return addresses, nil
}

func (r *Resolver) push(host string, a answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.hosts[host]
	if !ok {
		sc = &script{}
		r.hosts[host] = sc
	}
	sc.answers = append(sc.answers, a)
}

func notFound(host string) error {
	return &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}
