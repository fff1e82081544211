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

// Package zkensemble turns a coordination service connect string, such as a
// ZooKeeper "host1:2181,host2:2181/chroot", into the connection string a
// client should actually dial.
//
// Ensembles are often published under a single DNS name with one A record
// per server. A client that is handed that name connects to whichever
// address its resolver picks first, and never learns about the others. A
// [ResolvingProvider] instead resolves every host on each call and lists one
// "address:port" endpoint per record:
//
//	provider, err := zkensemble.NewResolvingProvider("zk.example.com:2181/app")
//	if err != nil {
//		return err // malformed connect string
//	}
//	connectString := provider.ConnectionString()
//	// "10.0.0.1:2181,10.0.0.2:2181,10.0.0.3:2181/app"
//
// # Canonical Order
//
// Endpoints are sorted: numeric addresses first (IPv4 before IPv6, then by
// value), followed by any literal host names, with ties broken by port. Two
// resolutions that return the same records in a different order therefore
// produce identical strings, which keeps clients from treating round-robin
// DNS as an ensemble change.
//
// # Failures
//
// A host that cannot be resolved is not an error. It contributes its literal
// "host:port" to the result, so that an IP literal or a name the client can
// resolve by other means still takes part. Only a malformed connect string
// is an error, and it is reported by NewResolvingProvider.
//
// # Watching
//
// A [Watcher] polls a ResolvingProvider and reports the connection string
// whenever it changes.
package zkensemble
