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
	"github.com/cloudwego/dfg/internal/dfg/traits"
)

type Options struct {
	FirstLocalSlot   int
	MaxConstants     int
	MaxPhysicalSlots int
	Validate         bool
	LayoutSVGDir     string
	TraitTable       *traits.Table
}

// Traits returns the configured trait table, or the built-in one.
func (self *Options) Traits() *traits.Table {
	if self.TraitTable != nil {
		return self.TraitTable
	}
	return traits.Default()
}

func GetDefaultOptions() Options {
	return Options{
		FirstLocalSlot:   FirstLocalSlot,
		MaxConstants:     MaxConstants,
		MaxPhysicalSlots: MaxPhysicalSlots,
		Validate:         Validate,
		LayoutSVGDir:     LayoutSVGDir,
	}
}
