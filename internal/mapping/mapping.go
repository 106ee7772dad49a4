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

// Package mapping provides the OS-facing primitives the page-release
// engine treats as external collaborators: anonymous memory mapping
// for the PageMap's heap-backed counter buffer, and the "release these
// pages to the OS" advisory call that backs ReleaseRecorder.
package mapping

// PageSize returns the process's page size. It is cached on first
// call: stable for the process lifetime, always a power of two.
func PageSize() uintptr {
	return cachedPageSize()
}
