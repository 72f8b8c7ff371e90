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

package dfg

import (
	"fmt"

	"github.com/cloudwego/dfg/internal/dfg/stacklayout"
	"github.com/cloudwego/dfg/internal/dfg/traits"
	"github.com/cloudwego/dfg/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// TraitTable is a per-opcode codegen trait table.
type TraitTable = traits.Table

const (
	_MinFirstLocalSlot = 2
)

// WithFirstLocalSlot sets the first physical slot available to locals. The
// slots below it are the register spill area.
//
// This value can also be configured with the `DFG_FIRST_LOCAL_SLOT`
// environment variable.
//
// The default value of this option is "2".
func WithFirstLocalSlot(slot int) Option {
	if slot < _MinFirstLocalSlot || slot >= stacklayout.MaxSlots {
		panic(fmt.Sprintf("dfg: invalid first local slot: %d", slot))
	} else {
		return func(o *opts.Options) { o.FirstLocalSlot = slot }
	}
}

// WithMaxConstants lowers the constant table ceiling. Reaching it aborts the
// compilation with a *LimitError panic.
//
// The default (and highest) value of this option is "32768".
func WithMaxConstants(n int) Option {
	if n <= 0 || n > stacklayout.MaxSlots {
		panic(fmt.Sprintf("dfg: invalid constant limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxConstants = n }
	}
}

// WithMaxPhysicalSlots lowers the physical slot ceiling. Reaching it aborts
// the compilation with a *LimitError panic.
//
// The default (and highest) value of this option is "32768".
func WithMaxPhysicalSlots(n int) Option {
	if n <= 0 || n > stacklayout.MaxSlots {
		panic(fmt.Sprintf("dfg: invalid physical slot limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxPhysicalSlots = n }
	}
}

// WithValidation cross-checks the graph and every pass result after the
// compilation, returning the first inconsistency as an error.
//
// This value can also be enabled with the `DFG_VALIDATE` environment
// variable.
func WithValidation(v bool) Option {
	return func(o *opts.Options) { o.Validate = v }
}

// WithLayoutSVG renders every planned stack layout as an SVG file into dir,
// one file per function. An empty dir disables the rendering.
//
// This value can also be configured with the `DFG_LAYOUT_SVG` environment
// variable.
func WithLayoutSVG(dir string) Option {
	return func(o *opts.Options) { o.LayoutSVGDir = dir }
}

// WithTraitTable uses t instead of the built-in trait table.
func WithTraitTable(t *TraitTable) Option {
	if t == nil {
		panic("dfg: nil trait table")
	} else {
		return func(o *opts.Options) { o.TraitTable = t }
	}
}

// WithTraitFile loads the trait table from a TOML file. It panics with a
// TraitError if the file cannot be used on this host.
func WithTraitFile(path string) Option {
	if t, err := LoadTraitTable(path); err != nil {
		panic(err)
	} else {
		return WithTraitTable(t)
	}
}

// LoadTraitTable reads a trait table from a TOML file and checks that the
// host CPU has every feature it requires.
func LoadTraitTable(path string) (*TraitTable, error) {
	t, err := traits.Load(path)
	if err != nil {
		return nil, TraitError{Path: path, Reason: err}
	}
	if err = t.CheckHost(); err != nil {
		return nil, TraitError{Path: path, Reason: err}
	}
	return t, nil
}

// SetFirstLocalSlot sets the default first local slot for all compilations
// from now on.
//
// Returns the old opts.FirstLocalSlot value.
func SetFirstLocalSlot(slot int) int {
	if slot < _MinFirstLocalSlot || slot >= stacklayout.MaxSlots {
		panic(fmt.Sprintf("dfg: invalid first local slot: %d", slot))
	}
	slot, opts.FirstLocalSlot = opts.FirstLocalSlot, slot
	return slot
}
