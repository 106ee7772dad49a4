// Copyright 2018 The gVisor Authors.
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

// Package log provides the leveled logging surface the page-release
// engine uses to report fallback paths and syscall failures, without
// pulling in a full structured-logging dependency for a handful of
// call sites.
package log

import (
	"log"
	"os"
)

// Level controls which severities are emitted.
type Level int

const (
	// Warning is the default level: only Warningf is emitted.
	Warning Level = iota
	Info
	Debug
)

var (
	std      = log.New(os.Stderr, "", log.LstdFlags)
	minLevel = Warning
)

// SetLevel changes the minimum emitted severity. Intended for use by
// cmd/pagereleasedemo; library code never calls it.
func SetLevel(l Level) { minLevel = l }

// Debugf logs a debug-level message.
func Debugf(format string, args ...interface{}) {
	if minLevel >= Debug {
		std.Printf("[debug] "+format, args...)
	}
}

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) {
	if minLevel >= Info {
		std.Printf("[info] "+format, args...)
	}
}

// Warningf logs a warning-level message. Warnings are always emitted.
func Warningf(format string, args ...interface{}) {
	std.Printf("[warning] "+format, args...)
}
