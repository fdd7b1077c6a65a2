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

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies conversion failures.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindUnsupported   ErrorKind = "unsupported_format"
	KindConversion    ErrorKind = "conversion"
	KindConfiguration ErrorKind = "configuration"
	KindTimeout       ErrorKind = "timeout"
	KindUnknown       ErrorKind = "unknown"
)

// ValidationError is returned when an input fails precondition checks.
// The handler is never invoked for such inputs.
type ValidationError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error   { return e.Err }
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// UnsupportedFormatError is returned when no conversion exists for a format pair.
type UnsupportedFormatError struct {
	Input  Format
	Output Format
	Path   string
}

func (e *UnsupportedFormatError) Error() string {
	parts := []string{"unsupported conversion"}
	if e.Input != "" {
		parts = append(parts, fmt.Sprintf("from=%q", e.Input))
	}
	if e.Output != "" {
		parts = append(parts, fmt.Sprintf("to=%q", e.Output))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("input=%q", e.Path))
	}
	return strings.Join(parts, " ")
}

func (e *UnsupportedFormatError) Kind() ErrorKind { return KindUnsupported }

// ConversionError is returned when a handler accepted the input but failed to convert it.
type ConversionError struct {
	Input   string
	Format  Format
	Quality Quality
	Cause   error
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "convert %q to %s", e.Input, e.Format)
	if e.Quality != "" {
		fmt.Fprintf(&b, " (quality %s)", e.Quality)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ConversionError) Unwrap() error   { return e.Cause }
func (e *ConversionError) Kind() ErrorKind { return KindConversion }

// ConfigurationError reports an unusable setting, such as an unknown quality tier.
type ConfigurationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration %s=%q: %s", e.Key, e.Value, e.Reason)
	}
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Kind() ErrorKind { return KindConfiguration }

// TimeoutError is returned when a single conversion exceeds its deadline.
type TimeoutError struct {
	Input   string
	Format  Format
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("convert %q to %s: timed out after %s", e.Input, e.Format, e.Timeout)
}

func (e *TimeoutError) Kind() ErrorKind { return KindTimeout }

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsRetryable reports whether a failed conversion may succeed when re-attempted
// with identical parameters.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConversion, KindTimeout:
		return true
	}
	return false
}

// IsUnsupportedFormat reports whether the error is an UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var target *UnsupportedFormatError
	return errors.As(err, &target)
}
