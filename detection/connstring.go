// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConnString is returned for malformed connection strings.
var ErrInvalidConnString = errors.New("invalid connection string")

// Param is one key=value pair of a connection string.
type Param struct {
	Key   string
	Value string
}

// ConnString names a device: a driver followed by its parameters, written
// as driver:key=value[:key=value]. Values escape ':' and '%' as %3A and %25.
type ConnString struct {
	Driver string
	Params []Param
}

var valueEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// ParseConnString parses s. A parameter without '=' is an error.
func ParseConnString(s string) (ConnString, error) {
	var cs ConnString
	tokens := strings.Split(s, ":")
	cs.Driver = tokens[0]
	if cs.Driver == "" {
		return ConnString{}, fmt.Errorf("%w: %q has no driver", ErrInvalidConnString, s)
	}
	for _, tok := range tokens[1:] {
		key, raw, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return ConnString{}, fmt.Errorf("%w: %q is not key=value", ErrInvalidConnString, tok)
		}
		value, err := url.PathUnescape(raw)
		if err != nil {
			return ConnString{}, fmt.Errorf("%w: %q: %w", ErrInvalidConnString, tok, err)
		}
		cs.Params = append(cs.Params, Param{Key: key, Value: value})
	}
	return cs, nil
}

// BuildConnString renders a connection string for driver with params in order.
func BuildConnString(driver string, params ...Param) string {
	var sb strings.Builder
	sb.WriteString(driver)
	for _, p := range params {
		sb.WriteByte(':')
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(valueEscaper.Replace(p.Value))
	}
	return sb.String()
}

// String renders cs.
func (cs ConnString) String() string {
	return BuildConnString(cs.Driver, cs.Params...)
}

// Get returns the last value of key.
func (cs ConnString) Get(key string) (string, bool) {
	for i := len(cs.Params) - 1; i >= 0; i-- {
		if cs.Params[i].Key == key {
			return cs.Params[i].Value, true
		}
	}
	return "", false
}

// GetDefault returns the value of key or def when it is absent.
func (cs ConnString) GetDefault(key, def string) string {
	if v, ok := cs.Get(key); ok {
		return v
	}
	return def
}
