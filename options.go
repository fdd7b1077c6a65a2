// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package docconv

import "github.com/sirupsen/logrus"

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger used for conversion and batch events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Converter) {
		if l != nil {
			c.log = l
		}
	}
}

// WithQualityRules replaces the built-in quality rules.
func WithQualityRules(r QualityRules) Option {
	return func(c *Converter) {
		if r != nil {
			c.rules = r
		}
	}
}

// WithMaxFileSize sets the largest accepted input in bytes (0 disables the check).
func WithMaxFileSize(n int64) Option {
	return func(c *Converter) {
		c.maxFileSize = n
	}
}

// WithHandler replaces the handler for a supported conversion pair.
// Unsupported pairs are ignored.
func WithHandler(in, out Format, h Handler) Option {
	return func(c *Converter) {
		if h == nil {
			return
		}
		c.overrides[pair{in, out}] = h
	}
}
