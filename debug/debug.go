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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/dfg/internal/dfg"
)

// A Stats records statistics about the DFG compiler.
type Stats struct {
	Functions int
	Graph     GraphStats
}

// A GraphStats records the accumulated size of every compiled graph.
type GraphStats struct {
	Nodes     int
	Constants int
	Slots     int
}

// GetStats returns statistics of the DFG compiler.
func GetStats() Stats {
	return Stats{
		Functions: int(atomic.LoadUint32(&dfg.FnCount)),
		Graph: GraphStats{
			Nodes:     int(atomic.LoadUint64(&dfg.NodeCount)),
			Constants: int(atomic.LoadUint64(&dfg.ConstantCount)),
			Slots:     int(atomic.LoadUint64(&dfg.SlotCount)),
		},
	}
}
