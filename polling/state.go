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

package polling

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn53x"
)

// State is where a session is in its detect/remove cycle.
type State int

const (
	StateIdle State = iota
	StatePresent
	StatePaused
	StateRecovering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresent:
		return "present"
	case StatePaused:
		return "paused"
	case StateRecovering:
		return "recovering"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TargetState is a snapshot of what the session last saw.
type TargetState struct {
	// Target is the target in the field, nil when there is none.
	Target   *pn53x.Target
	Since    time.Time
	LastSeen time.Time
	State    State
}
