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

// Package resolver provides the name resolution capability used when
// building ensemble connection strings. Name resolution here is the
// process of turning one host name from a connect string into the set
// of numeric addresses behind it, such as the several A records of a
// round-robin DNS name.
//
// It contains the core interface ([HostResolver]), which is deliberately
// small so that tests can substitute a deterministic stand-in (see the
// ensembletest package), and a default implementation that queries DNS
// through a [net.Resolver].
//
// # Address Families
//
// The DNS implementation can be restricted to, or biased towards, one
// address family with an [AddressFamilyAffinity]. When a restriction
// filters out every address, the lookup is reported as not found so
// that callers treat it the same as a name that does not exist.
//
// # Errors
//
// Callers that need to tell a missing name apart from a failed lookup
// (a timeout or an unreachable server) can use [IsNotFound].
package resolver
