/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultFirstLocalSlot   = 2     // the register spill area precedes the locals
	_DefaultMaxConstants     = 32768 // constant ordinals are encoded as int16
	_DefaultMaxPhysicalSlots = 32768 // physical slot ordinals are encoded as int16
)

var (
	FirstLocalSlot   = parseSlot("DFG_FIRST_LOCAL_SLOT", _DefaultFirstLocalSlot, 1)
	MaxConstants     = parseLimit("DFG_MAX_CONSTANTS", _DefaultMaxConstants)
	MaxPhysicalSlots = parseLimit("DFG_MAX_PHYSICAL_SLOTS", _DefaultMaxPhysicalSlots)
	Validate         = os.Getenv("DFG_VALIDATE") != ""
	LayoutSVGDir     = os.Getenv("DFG_LAYOUT_SVG")
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("dfg: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("dfg: value too small for " + key)
	} else {
		return ret
	}
}

func parseLimit(key string, def int) int {
	if ret := parseOrDefault(key, def, 0); ret > def {
		panic("dfg: value too large for " + key)
	} else {
		return ret
	}
}

func parseSlot(key string, def int, min int) int {
	if ret := parseOrDefault(key, def, min); ret >= _DefaultMaxPhysicalSlots {
		panic("dfg: value too large for " + key)
	} else {
		return ret
	}
}
