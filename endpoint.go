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
	"cmp"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// endpoint is a single "address:port" member of a resolved ensemble. Exactly
// one of addr and host is set: addr when the host resolved, host (the
// literal token from the connect string) when it did not.
type endpoint struct {
	addr netip.Addr
	host string
	port uint16
}

func (e endpoint) String() string {
	port := strconv.Itoa(int(e.port))
	if e.addr.IsValid() {
		return net.JoinHostPort(e.addr.String(), port)
	}
	return e.host + ":" + port
}

// compareEndpoints orders resolved addresses before literal fallbacks.
// Addresses compare numerically (IPv4 before IPv6), literals
// lexicographically, and ties break on the port.
func compareEndpoints(a, b endpoint) int {
	switch aResolved, bResolved := a.addr.IsValid(), b.addr.IsValid(); {
	case aResolved && !bResolved:
		return -1
	case !aResolved && bResolved:
		return 1
	case aResolved:
		if c := a.addr.Compare(b.addr); c != 0 {
			return c
		}
	default:
		if c := strings.Compare(a.host, b.host); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.port, b.port)
}

// joinEndpoints sorts endpoints in place and renders them as a connect
// string, followed by chroot.
func joinEndpoints(endpoints []endpoint, chroot string) string {
	slices.SortFunc(endpoints, compareEndpoints)
	var sb strings.Builder
	for i, e := range endpoints {
		if i > 0 {
			sb.WriteString(hostSeparator)
		}
		sb.WriteString(e.String())
	}
	sb.WriteString(chroot)
	return sb.String()
}
