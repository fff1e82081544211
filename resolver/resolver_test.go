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
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

var (
	ip4Address1 = netip.MustParseAddr("10.0.0.100")
	ip4Address2 = netip.MustParseAddr("10.0.0.101")
	ip6Address1 = netip.MustParseAddr("fe80::1")
	ip6Address2 = netip.MustParseAddr("fe80::2")
)

func TestAddressFamilyPolicy(t *testing.T) {
	t.Parallel()

	// Mixed A/AAAA records
	mixedDNSResolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		aRecord(ip4Address1),
		aaaaRecord(ip6Address1),
		aRecord(ip4Address2),
		aaaaRecord(ip6Address2),
	})
	testLookupHost(t, NewDNSResolver(mixedDNSResolver, PreferIPv4), "example.com", ip4Address1, ip4Address2)
	testLookupHost(t, NewDNSResolver(mixedDNSResolver, RequireIPv4), "example.com", ip4Address1, ip4Address2)
	testLookupHost(t, NewDNSResolver(mixedDNSResolver, PreferIPv6), "example.com", ip6Address1, ip6Address2)
	testLookupHost(t, NewDNSResolver(mixedDNSResolver, RequireIPv6), "example.com", ip6Address1, ip6Address2)
	testLookupHost(t, NewDNSResolver(mixedDNSResolver, AllFamilies), "example.com",
		ip4Address1, ip4Address2, ip6Address1, ip6Address2)

	// A records only
	ip4DNSResolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		aRecord(ip4Address1),
		aRecord(ip4Address2),
	})
	testLookupHost(t, NewDNSResolver(ip4DNSResolver, PreferIPv4), "example.com", ip4Address1, ip4Address2)
	testLookupHost(t, NewDNSResolver(ip4DNSResolver, RequireIPv4), "example.com", ip4Address1, ip4Address2)
	testLookupHost(t, NewDNSResolver(ip4DNSResolver, PreferIPv6), "example.com", ip4Address1, ip4Address2)
	testLookupHost(t, NewDNSResolver(ip4DNSResolver, RequireIPv6), "example.com")
	testLookupHost(t, NewDNSResolver(ip4DNSResolver, AllFamilies), "example.com", ip4Address1, ip4Address2)

	// AAAA records only
	ip6DNSResolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		aaaaRecord(ip6Address1),
		aaaaRecord(ip6Address2),
	})
	testLookupHost(t, NewDNSResolver(ip6DNSResolver, PreferIPv4), "example.com", ip6Address1, ip6Address2)
	testLookupHost(t, NewDNSResolver(ip6DNSResolver, RequireIPv4), "example.com")
	testLookupHost(t, NewDNSResolver(ip6DNSResolver, PreferIPv6), "example.com", ip6Address1, ip6Address2)
	testLookupHost(t, NewDNSResolver(ip6DNSResolver, RequireIPv6), "example.com", ip6Address1, ip6Address2)
	testLookupHost(t, NewDNSResolver(ip6DNSResolver, AllFamilies), "example.com", ip6Address1, ip6Address2)
}

func TestNumericAddresses(t *testing.T) {
	t.Parallel()

	loopback := netip.MustParseAddr("127.0.0.1")

	// IPv4 embedded in IPv6 comes back as plain IPv4, so that endpoints
	// built from it are rendered the same way as an A record.
	resolver := NewDNSResolver(nil, RequireIPv4)
	testLookupHost(t, resolver, "127.0.0.1", loopback)
	testLookupHost(t, resolver, "::ffff:127.0.0.1", loopback)

	resolver = NewDNSResolver(nil, AllFamilies)
	testLookupHost(t, resolver, "::1", netip.IPv6Loopback())
}

func TestNameNotFound(t *testing.T) {
	t.Parallel()

	resolver := NewDNSResolver(newFakeDNSResolver(t, nil), AllFamilies)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	_, err := resolver.LookupHost(ctx, "example.com")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(&net.DNSError{Err: "no such host", Name: "test", IsNotFound: true}))
	assert.True(t, IsNotFound(errors.Wrap(&net.DNSError{IsNotFound: true}, "lookup")))
	assert.True(t, IsNotFound(errors.WithMessage(ErrNoAddresses, "test")))
	assert.False(t, IsNotFound(&net.DNSError{Err: "i/o timeout", IsTimeout: true}))
	assert.False(t, IsNotFound(context.DeadlineExceeded))
	assert.False(t, IsNotFound(nil))
}

func TestHostResolverFunc(t *testing.T) {
	t.Parallel()

	var queried string
	resolver := HostResolverFunc(func(_ context.Context, host string) ([]netip.Addr, error) {
		queried = host
		return []netip.Addr{ip4Address1}, nil
	})
	addresses, err := resolver.LookupHost(context.Background(), "zk.example.com")
	require.NoError(t, err)
	assert.Equal(t, "zk.example.com", queried)
	assert.Equal(t, []netip.Addr{ip4Address1}, addresses)
}

func testLookupHost(
	t *testing.T,
	resolver HostResolver,
	target string,
	expectedAddresses ...netip.Addr,
) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	addresses, err := resolver.LookupHost(ctx, target)
	if len(expectedAddresses) == 0 {
		dnsErr := &net.DNSError{}
		if assert.ErrorAs(t, err, &dnsErr) {
			assert.True(t, dnsErr.IsNotFound)
		}
		assert.True(t, IsNotFound(err))
		return
	}
	require.NoError(t, err)
	assert.ElementsMatch(t, expectedAddresses, addresses)
}

func aRecord(address netip.Addr) dnsmessage.Resource {
	return dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{
			Name:  dnsmessage.MustNewName("example.com."),
			Type:  dnsmessage.TypeA,
			Class: dnsmessage.ClassINET,
		},
		Body: &dnsmessage.AResource{A: address.As4()},
	}
}

func aaaaRecord(address netip.Addr) dnsmessage.Resource {
	return dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{
			Name:  dnsmessage.MustNewName("example.com."),
			Type:  dnsmessage.TypeAAAA,
			Class: dnsmessage.ClassINET,
		},
		Body: &dnsmessage.AAAAResource{AAAA: address.As16()},
	}
}

type fakeDNSResolver struct {
	t       *testing.T
	answers []dnsmessage.Resource
}

func (r *fakeDNSResolver) Dial(context.Context, string, string) (net.Conn, error) {
	clientConn, serverConn := net.Pipe()
	go func() {
		var requestLength uint16
		if err := binary.Read(serverConn, binary.BigEndian, &requestLength); err != nil {
			r.t.Errorf("error reading dns request length: %v", err)
			return
		}
		requestData := make([]byte, requestLength)
		if _, err := io.ReadFull(serverConn, requestData); err != nil {
			r.t.Errorf("error reading dns request: %v", err)
			return
		}
		request := &dnsmessage.Message{}
		if err := request.Unpack(requestData); err != nil {
			r.t.Errorf("error unpacking dns request: %v", err)
			return
		}
		answers := []dnsmessage.Resource{}
		for _, answer := range r.answers {
			if answer.Header.Type == request.Questions[0].Type {
				answers = append(answers, answer)
			}
		}
		rcode := dnsmessage.RCodeSuccess
		if len(r.answers) == 0 {
			rcode = dnsmessage.RCodeNameError
		}
		response := &dnsmessage.Message{
			Header: dnsmessage.Header{
				ID:            request.ID,
				Response:      true,
				RCode:         rcode,
				Authoritative: true,
			},
			Questions: request.Questions,
			Answers:   answers,
		}
		responseData, err := response.Pack()
		if err != nil {
			r.t.Errorf("error packing dns response: %v", err)
			return
		}
		responseLength := uint16(len(responseData))
		if err := binary.Write(serverConn, binary.BigEndian, &responseLength); err != nil {
			r.t.Errorf("error writing dns response length: %v", err)
			return
		}
		if _, err := serverConn.Write(responseData); err != nil {
			r.t.Errorf("error writing dns response: %v", err)
			return
		}
		if err := serverConn.Close(); err != nil {
			r.t.Errorf("error closing dns server connection: %v", err)
			return
		}
	}()
	return clientConn, nil
}

func newFakeDNSResolver(t *testing.T, answers []dnsmessage.Resource) *net.Resolver {
	t.Helper()

	dialer := fakeDNSResolver{
		t:       t,
		answers: answers,
	}
	return &net.Resolver{
		PreferGo: true,
		Dial:     dialer.Dial,
	}
}
