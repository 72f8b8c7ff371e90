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

// Package dfg compiles a freshly built DFG graph through the optimizing tier
// front half: CFG cleanup, block-local SSA construction, register bank
// assignment and stack layout planning.
package dfg

import (
	"context"

	"fmt"

	core "github.com/cloudwego/dfg/internal/dfg"
	"github.com/cloudwego/dfg/internal/dfg/bytecode"
	"github.com/cloudwego/dfg/internal/dfg/cfa"
	"github.com/cloudwego/dfg/internal/dfg/ir"
	"github.com/cloudwego/dfg/internal/dfg/stacklayout"
	"github.com/cloudwego/dfg/internal/opts"
)

type (
	// Graph is one function's DFG IR, including its inlined callees.
	Graph = ir.Graph

	// Layout is the result of stack layout planning: the constant table,
	// the physical slot count and the per-frame OSR records.
	Layout = stacklayout.Result

	// CodeBlock is the compile-time view of one guest function.
	CodeBlock = ir.CodeBlock

	// Decoder reads one function's bytecode stream.
	Decoder = bytecode.Decoder

	// Analysis lists the basic blocks of a bytecode stream and the locals
	// captured by closures around each of them.
	Analysis = cfa.Result
)

// AnalyzeCodeBlock runs the control-flow and upvalue analysis over the
// bytecode of cb, and registers the bytecode liveness derived from it with g.
// Every frame of cb picks it up through Graph.RegisterBytecodeLivenessInfo.
func AnalyzeCodeBlock(g *Graph, cb *CodeBlock, dec Decoder) *Analysis {
	if dec.NumLocals() != int(cb.NumLocals) {
		panic(fmt.Sprintf("dfg: %s has %d locals but its bytecode has %d", cb.Name, cb.NumLocals, dec.NumLocals()))
	}
	res := cfa.Analyze(dec)
	g.SetBytecodeLiveness(cb, cfa.ComputeBytecodeLiveness(dec, res))
	return res
}

// Compile runs every pass over g, which must be in the pre-unification form
// produced by the graph builder. g is modified in place.
//
// Exceeding the constant or physical slot ceilings aborts with a *LimitError
// panic, since the function can not be compiled at all.
func Compile(ctx context.Context, g *Graph, options ...Option) (*Layout, error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* the trait table must match the host CPU */
	tt := o.Traits()
	if err := tt.CheckHost(); err != nil {
		return nil, TraitError{Reason: err}
	}

	/* build the compilation unit */
	g.SetFirstLocalPhysicalSlot(uint32(o.FirstLocalSlot))
	u := &core.Unit{
		Graph:  g,
		Traits: tt,
		Limits: stacklayout.Limits{
			MaxConstants:     o.MaxConstants,
			MaxPhysicalSlots: o.MaxPhysicalSlots,
		},
		LayoutSVGDir: o.LayoutSVGDir,
	}

	/* run the pipeline */
	if err := core.Compile(ctx, u, o.Validate); err != nil {
		return nil, err
	}
	return u.Layout, nil
}
