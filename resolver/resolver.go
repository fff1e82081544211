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

package resolver

import (
	"context"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

// AddressFamilyAffinity is an option that allows control over the preference
// for which addresses to consider when resolving, based on their address
// family.
type AddressFamilyAffinity int

const (
	// AllFamilies will result in all addresses being used, regardless of
	// their address family.
	AllFamilies AddressFamilyAffinity = iota

	// PreferIPv4 will result in only IPv4 addresses being used, if any
	// IPv4 addresses are present. If no IPv4 addresses are resolved, then
	// all addresses will be used.
	PreferIPv4

	// PreferIPv6 will result in only IPv6 addresses being used, if any
	// IPv6 addresses are present. If no IPv6 addresses are resolved, then
	// all addresses will be used.
	PreferIPv6

	// RequireIPv4 will result in only IPv4 addresses being used. A name
	// with only IPv6 addresses is reported as not found.
	RequireIPv4

	// RequireIPv6 will result in only IPv6 addresses being used. A name
	// with only IPv4 addresses is reported as not found.
	RequireIPv6
)

// ErrNoAddresses is the reason given when a name resolves, but none of its
// addresses are of a family allowed by the configured affinity.
var ErrNoAddresses = errors.New("no addresses of the requested family")

// HostResolver resolves a single host name into numeric addresses. It is the
// only dependency of the ensemble resolver, and implementations must be safe
// for concurrent use.
type HostResolver interface {
	// LookupHost returns the addresses for host. A numeric address must
	// resolve to itself. Implementations report a name that does not exist
	// with an error for which IsNotFound returns true.
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// HostResolverFunc is an adapter that allows the use of an ordinary function
// as a HostResolver.
type HostResolverFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// LookupHost calls fn(ctx, host).
func (fn HostResolverFunc) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return fn(ctx, host)
}

// NewDNSResolver creates a HostResolver that uses the domain name system
// through the given [net.Resolver]. If resolver is nil, [net.DefaultResolver]
// is used. The specified address family affinity value can be used to prefer
// or require either IPv4 or IPv6 addresses, in cases where there are both A
// and AAAA records.
func NewDNSResolver(resolver *net.Resolver, affinity AddressFamilyAffinity) HostResolver {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &dnsResolver{
		resolver: resolver,
		affinity: affinity,
	}
}

// IsNotFound reports whether err means that the name does not exist, as
// opposed to a lookup that could not be completed.
func IsNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return errors.Is(err, ErrNoAddresses)
}

type dnsResolver struct {
	resolver *net.Resolver
	affinity AddressFamilyAffinity
}

func (r *dnsResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	addresses, err := r.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for i := range addresses {
		// Go hands back IPv4 answers in their 16-byte form.
		addresses[i] = addresses[i].Unmap()
	}
	addresses = filterFamily(addresses, r.affinity)
	if len(addresses) == 0 {
		return nil, &net.DNSError{
			Err:        ErrNoAddresses.Error(),
			Name:       host,
			IsNotFound: true,
		}
	}
	return addresses, nil
}

func filterFamily(addresses []netip.Addr, affinity AddressFamilyAffinity) []netip.Addr {
	var ip4Addresses, ip6Addresses []netip.Addr
	for _, address := range addresses {
		if address.Is4() {
			ip4Addresses = append(ip4Addresses, address)
		} else {
			ip6Addresses = append(ip6Addresses, address)
		}
	}
	switch affinity {
	case PreferIPv4:
		if len(ip4Addresses) > 0 {
			return ip4Addresses
		}
	case PreferIPv6:
		if len(ip6Addresses) > 0 {
			return ip6Addresses
		}
	case RequireIPv4:
		return ip4Addresses
	case RequireIPv6:
		return ip6Addresses
	case AllFamilies:
	}
	return addresses
}
