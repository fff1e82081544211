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
	"net/netip"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		hosts  []hostEntry
		chroot string
	}{
		{
			name:  "single host",
			input: "test:2181",
			hosts: []hostEntry{{host: "test", port: 2181}},
		},
		{
			name:  "several hosts keep their order",
			input: "b:2181,a:2182,c:1",
			hosts: []hostEntry{{host: "b", port: 2181}, {host: "a", port: 2182}, {host: "c", port: 1}},
		},
		{
			name:   "chroot",
			input:  "test:2181/chroot/path",
			hosts:  []hostEntry{{host: "test", port: 2181}},
			chroot: "/chroot/path",
		},
		{
			name:   "bare slash is kept",
			input:  "test:2181/",
			hosts:  []hostEntry{{host: "test", port: 2181}},
			chroot: "/",
		},
		{
			name:  "ipv6 literal split on last colon",
			input: "[2001:db8::1]:2181,::1:2182",
			hosts: []hostEntry{{host: "[2001:db8::1]", port: 2181}, {host: "::1", port: 2182}},
		},
		{
			name:  "leading zeros in port",
			input: "test:02181",
			hosts: []hostEntry{{host: "test", port: 2181}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			parsed, err := parseConnectString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.hosts, parsed.hosts)
			assert.Equal(t, tt.chroot, parsed.chroot)
			require.NoError(t, ParseConnectString(tt.input))
		})
	}
}

func TestLookupName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "zk.example.com", hostEntry{host: "zk.example.com"}.lookupName())
	assert.Equal(t, "::1", hostEntry{host: "[::1]"}.lookupName())
	assert.Equal(t, "::1", hostEntry{host: "::1"}.lookupName())
	assert.Equal(t, "[::1", hostEntry{host: "[::1"}.lookupName())
}

func TestCompareEndpoints(t *testing.T) {
	t.Parallel()

	ordered := []endpoint{
		{addr: netip.MustParseAddr("1.1.1.1"), port: 2181},
		{addr: netip.MustParseAddr("1.1.1.1"), port: 2182},
		{addr: netip.MustParseAddr("9.0.0.1"), port: 1},
		{addr: netip.MustParseAddr("10.0.0.1"), port: 1},
		{addr: netip.MustParseAddr("::1"), port: 1},
		{host: "a", port: 2181},
		{host: "a", port: 10000},
		{host: "b", port: 1},
	}
	shuffled := slices.Clone(ordered)
	slices.Reverse(shuffled)
	shuffled[0], shuffled[3] = shuffled[3], shuffled[0]
	slices.SortFunc(shuffled, compareEndpoints)
	assert.Equal(t, ordered, shuffled)
}

func TestJoinEndpoints(t *testing.T) {
	t.Parallel()

	endpoints := []endpoint{
		{host: "literal", port: 2181},
		{addr: netip.MustParseAddr("2001:db8::1"), port: 2181},
		{addr: netip.MustParseAddr("10.0.0.1"), port: 2181},
	}
	assert.Equal(t,
		"10.0.0.1:2181,[2001:db8::1]:2181,literal:2181/chroot",
		joinEndpoints(endpoints, "/chroot"),
	)
	assert.Equal(t, "", joinEndpoints(nil, ""))
}
