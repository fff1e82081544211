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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	hostSeparator = ","
	chrootPrefix  = "/"
)

// ErrMalformedConnectString is returned, wrapped with details, when a connect
// string does not have the form "host:port[,host:port...][/chroot]".
var ErrMalformedConnectString = errors.New("malformed connect string")

// hostEntry is one "host:port" segment of a connect string.
type hostEntry struct {
	// host is the token exactly as it appears in the connect string,
	// including the brackets around an IPv6 literal.
	host string
	port uint16
}

// lookupName is the name handed to the HostResolver.
func (h hostEntry) lookupName() string {
	if strings.HasPrefix(h.host, "[") && strings.HasSuffix(h.host, "]") {
		return h.host[1 : len(h.host)-1]
	}
	return h.host
}

type connectString struct {
	hosts []hostEntry
	// chroot is everything from the first '/' on, or empty.
	chroot string
}

// ParseConnectString validates a connect string. It is the same check that
// NewResolvingProvider performs, exposed for configuration layers that want
// to reject bad input before building a provider.
func ParseConnectString(s string) error {
	_, err := parseConnectString(s)
	return err
}

func parseConnectString(s string) (connectString, error) {
	var result connectString
	hostList := s
	if idx := strings.Index(s, chrootPrefix); idx >= 0 {
		hostList, result.chroot = s[:idx], s[idx:]
	}
	if hostList == "" {
		return connectString{}, errors.WithMessagef(ErrMalformedConnectString, "%q: no hosts", s)
	}
	segments := strings.Split(hostList, hostSeparator)
	result.hosts = make([]hostEntry, 0, len(segments))
	for _, segment := range segments {
		entry, err := parseHostEntry(segment)
		if err != nil {
			return connectString{}, errors.WithMessagef(err, "%q", s)
		}
		result.hosts = append(result.hosts, entry)
	}
	return result, nil
}

func parseHostEntry(segment string) (hostEntry, error) {
	idx := strings.LastIndexByte(segment, ':')
	if idx < 0 {
		return hostEntry{}, errors.WithMessagef(ErrMalformedConnectString, "missing port in %q", segment)
	}
	host, portText := segment[:idx], segment[idx+1:]
	if strings.TrimSpace(host) == "" {
		return hostEntry{}, errors.WithMessagef(ErrMalformedConnectString, "missing host in %q", segment)
	}
	if strings.ContainsAny(host, " \t") {
		return hostEntry{}, errors.WithMessagef(ErrMalformedConnectString, "whitespace in host %q", host)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil || port == 0 {
		return hostEntry{}, errors.WithMessagef(ErrMalformedConnectString, "invalid port in %q", segment)
	}
	return hostEntry{host: host, port: uint16(port)}, nil
}
