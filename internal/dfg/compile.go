/*
 * Copyright 2022 ByteDance Inc.
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
    `context`
    `sync/atomic`

    `github.com/cloudwego/dfg/internal/dfg/ir`
    `github.com/cloudwego/dfg/internal/dfg/regbank`
    `github.com/cloudwego/dfg/internal/dfg/ssa`
    `github.com/cloudwego/dfg/internal/dfg/stacklayout`
    `github.com/cloudwego/dfg/internal/dfg/traits`
    `tlog.app/go/errors`
    `tlog.app/go/tlog`
)

var (
    FnCount       uint32
    NodeCount     uint64
    ConstantCount uint64
    SlotCount     uint64
)

// Unit is one function compilation flowing through the passes.
type Unit struct {
    Graph  *ir.Graph
    Traits *traits.Table
    Limits stacklayout.Limits
    Layout *stacklayout.Result

    // LayoutSVGDir receives an SVG rendering of every stack layout when set.
    LayoutSVGDir string
}

type Pass interface {
    Apply(*Unit)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

type (
    CFGCleanup     struct{}
    SSAConstruct   struct{}
    BankAssignment struct{}
    StackLayout    struct{}
)

func (CFGCleanup) Apply(u *Unit) {
    ssa.TrivialCFGCleanup(u.Graph)
}

func (SSAConstruct) Apply(u *Unit) {
    if !u.Graph.IsCfgAvailable() {
        u.Graph.ComputeReachabilityAndPredecessors()
    }
    ssa.ConstructBlockLocalSSA(u.Graph)
}

func (BankAssignment) Apply(u *Unit) {
    regbank.Assign(u.Graph, u.Traits)
}

func (StackLayout) Apply(u *Unit) {
    u.Layout = stacklayout.Plan(u.Graph, u.Limits)

    /* render the layout when asked to */
    if u.LayoutSVGDir != "" {
        if fn, err := stacklayout.DrawLayoutFile(u.LayoutSVGDir, u.Graph, u.Layout); err != nil {
            tlog.Printw("cannot render the stack layout", "func", u.Graph.RootCodeBlock().Name, "err", err)
        } else {
            tlog.Printw("stack layout rendered", "func", u.Graph.RootCodeBlock().Name, "file", fn)
        }
    }
}

var Passes = [...]PassDescriptor {
    { Name: "Trivial CFG Cleanup"          , Pass: new(CFGCleanup) },
    { Name: "Block-Local SSA Construction" , Pass: new(SSAConstruct) },     // Every local access has its logical variable after this pass.
    { Name: "Register Bank Assignment"     , Pass: new(BankAssignment) },
    { Name: "Stack Layout Planning"        , Pass: new(StackLayout) },
}

// Compile runs every pass over a freshly built pre-unification graph. With
// validate set the graph and every pass result is cross-checked, and the
// first inconsistency is returned as an error.
func Compile(ctx context.Context, u *Unit, validate bool) (err error) {
    tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "dfg: compile", "func", u.Graph.RootCodeBlock().Name)
    defer tr.Finish("err", &err)

    /* check the input graph */
    if validate {
        if err = u.Graph.Validate(ir.ValidateOptions { AllowUnreachableBlocks: true }); err != nil {
            return errors.Wrap(err, "input graph")
        }
    }

    /* run all the passes */
    for _, p := range Passes {
        runPass(ctx, p, u)
    }

    /* cross-check the results */
    if validate {
        if err = validateUnit(u); err != nil {
            return err
        }
    }

    /* update the statistics */
    atomic.AddUint32(&FnCount, 1)
    atomic.AddUint64(&NodeCount, uint64(u.Graph.NumNodes()))
    atomic.AddUint64(&ConstantCount, uint64(len(u.Layout.ConstantTable)))
    atomic.AddUint64(&SlotCount, uint64(u.Layout.NumTotalPhysicalSlots))
    return nil
}

func runPass(ctx context.Context, p PassDescriptor, u *Unit) {
    tr, _ := tlog.SpawnFromContextAndWrap(ctx, "dfg: pass", "name", p.Name)
    defer tr.Finish()
    p.Pass.Apply(u)

    /* dump the graph after every pass when asked to */
    if tr.If("dfg_dump") {
        tr.Printw("graph after pass", "name", p.Name, "form", u.Graph.Form(), "blocks", len(u.Graph.Blocks), "nodes", u.Graph.NumNodes())
        tr.Printw(u.Graph.Dump())
    }
}

func validateUnit(u *Unit) error {
    if err := u.Graph.Validate(ir.ValidateOptions {}); err != nil {
        return errors.Wrap(err, "graph")
    }
    if err := regbank.Verify(u.Graph, u.Traits); err != nil {
        return errors.Wrap(err, "register banks")
    }
    if err := stacklayout.Validate(u.Graph, u.Layout); err != nil {
        return errors.Wrap(err, "stack layout")
    }
    return nil
}
