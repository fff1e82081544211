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
	"net/netip"
	"slices"
	"time"

	"github.com/bufbuild/zkensemble/resolver"
	"go.uber.org/zap"
)

// Provider supplies the connection string that a coordination client uses
// each time it connects to the ensemble.
type Provider interface {
	// Start is called once, before the first call to ConnectionString.
	Start(ctx context.Context) error
	// Close is called once the client no longer needs connection strings.
	Close() error
	// ConnectionString returns the connection string to use for the next
	// connection attempt.
	ConnectionString() string
}

// ProviderOption is an option used to customize a ResolvingProvider.
type ProviderOption interface {
	apply(*providerOptions)
}

// WithHostResolver configures the name resolution used for the hosts in the
// connect string. By default, DNS is queried through [net.DefaultResolver]
// for addresses of both families.
func WithHostResolver(hostResolver resolver.HostResolver) ProviderOption {
	return providerOptionFunc(func(opts *providerOptions) {
		opts.resolver = hostResolver
	})
}

// WithLogger configures the logger used to report lookups that fell back to
// the literal host name. By default, nothing is logged.
func WithLogger(logger *zap.Logger) ProviderOption {
	return providerOptionFunc(func(opts *providerOptions) {
		opts.logger = logger
	})
}

// WithLookupTimeout bounds the time spent resolving all of the hosts in a
// single call to ConnectionString. Hosts that have not resolved when the
// timeout elapses fall back to their literal names. Zero, the default,
// means no timeout.
func WithLookupTimeout(timeout time.Duration) ProviderOption {
	return providerOptionFunc(func(opts *providerOptions) {
		opts.lookupTimeout = timeout
	})
}

// FixedProvider is a Provider that always returns the same connection
// string.
type FixedProvider string

var _ Provider = FixedProvider("")

// Start implements Provider. It does nothing.
func (FixedProvider) Start(context.Context) error { return nil }

// Close implements Provider. It does nothing.
func (FixedProvider) Close() error { return nil }

// ConnectionString returns p.
func (p FixedProvider) ConnectionString() string { return string(p) }

// ResolvingProvider is a Provider that resolves every host in its connect
// string on each call, so that a host name backed by several address
// records contributes one endpoint per address. The endpoints are sorted
// into a canonical order, so the same set of records always produces the
// same connection string no matter what order DNS returns them in.
//
// A host that fails to resolve, for any reason, contributes its literal
// "host:port" instead. Lookup failures are never returned to the caller.
//
// A ResolvingProvider holds no mutable state and is safe for concurrent use
// if its HostResolver is.
type ResolvingProvider struct {
	ensemble      connectString
	resolver      resolver.HostResolver
	logger        *zap.Logger
	lookupTimeout time.Duration
}

var _ Provider = (*ResolvingProvider)(nil)

// NewResolvingProvider parses connectString, which has the form
// "host1:port1,host2:port2,...[/chroot]", and returns a provider for it.
// A connect string that cannot be parsed is rejected here, with an error
// wrapping ErrMalformedConnectString, rather than on first use.
func NewResolvingProvider(connectString string, options ...ProviderOption) (*ResolvingProvider, error) {
	ensemble, err := parseConnectString(connectString)
	if err != nil {
		return nil, err
	}
	var opts providerOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	return &ResolvingProvider{
		ensemble:      ensemble,
		resolver:      opts.resolver,
		logger:        opts.logger,
		lookupTimeout: opts.lookupTimeout,
	}, nil
}

// Start implements Provider. The connect string was already validated by
// NewResolvingProvider, so there is nothing to do.
func (p *ResolvingProvider) Start(context.Context) error { return nil }

// Close implements Provider. It does nothing.
func (p *ResolvingProvider) Close() error { return nil }

// ConnectionString resolves the ensemble using a background context.
func (p *ResolvingProvider) ConnectionString() string {
	return p.ConnectionStringContext(context.Background())
}

// ConnectionStringContext resolves every host in the ensemble, in order,
// and returns the canonical connection string. A cancelled or expired ctx
// makes the remaining hosts fall back to their literal names.
func (p *ResolvingProvider) ConnectionStringContext(ctx context.Context) string {
	if p.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.lookupTimeout)
		defer cancel()
	}
	endpoints := make([]endpoint, 0, len(p.ensemble.hosts))
	for _, entry := range p.ensemble.hosts {
		endpoints = append(endpoints, p.resolve(ctx, entry)...)
	}
	return joinEndpoints(endpoints, p.ensemble.chroot)
}

func (p *ResolvingProvider) resolve(ctx context.Context, entry hostEntry) []endpoint {
	addresses, err := p.resolver.LookupHost(ctx, entry.lookupName())
	addresses = slices.DeleteFunc(addresses, func(address netip.Addr) bool {
		return !address.IsValid()
	})
	if err == nil && len(addresses) == 0 {
		err = resolver.ErrNoAddresses
	}
	if err != nil {
		if resolver.IsNotFound(err) {
			p.logger.Debug("host not found, using literal name",
				zap.String("host", entry.host), zap.Error(err))
		} else {
			p.logger.Warn("host lookup failed, using literal name",
				zap.String("host", entry.host), zap.Error(err))
		}
		return []endpoint{{host: entry.host, port: entry.port}}
	}
	endpoints := make([]endpoint, len(addresses))
	for i, address := range addresses {
		endpoints[i] = endpoint{addr: address.Unmap(), port: entry.port}
	}
	return endpoints
}

type providerOptionFunc func(*providerOptions)

func (f providerOptionFunc) apply(opts *providerOptions) {
	f(opts)
}

type providerOptions struct {
	resolver      resolver.HostResolver
	logger        *zap.Logger
	lookupTimeout time.Duration
}

func (opts *providerOptions) applyDefaults() {
	if opts.resolver == nil {
		opts.resolver = resolver.NewDNSResolver(nil, resolver.AllFamilies)
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
}
