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
package regbank

import (
    `fmt`

    `github.com/cloudwego/dfg/internal/dfg/ir`
    `github.com/cloudwego/dfg/internal/dfg/traits`
)

// _Context is the state of one run. Bank decisions never cross a block
// boundary, and every boundary advances the epoch so records left from the
// previous region read as stale.
type _Context struct {
    t       *traits.Table
    epoch   uint32
    info    map[ir.Value]*_Info
    pending []*_Info
}

// Assign decides, for every output and input edge of every node in g,
// whether the value should live in a general purpose register or a floating
// point register. t gives the legal banks of each operand and output.
func Assign(g *ir.Graph, t *traits.Table) {
    ctx := &_Context {
        t     : t,
        epoch : 1,
        info  : make(map[ir.Value]*_Info),
    }

    /* constant-like values are shared by all blocks */
    g.ForEachConstantLikeNode(func(n *ir.Node) {
        ctx.info[n.Value()] = new(_Info)
    })

    /* blocks are independent */
    for _, bb := range g.Blocks {
        ctx.block(bb)
    }
    if len(ctx.pending) != 0 {
        panic("regbank: undecided values left behind")
    }
}

func (self *_Context) finishAndAdvance() {
    for _, v := range self.pending {
        v.finalize(self.epoch)
    }
    self.pending = self.pending[:0]
    self.epoch++
}

func (self *_Context) infoOf(v ir.Value) *_Info {
    if p, ok := self.info[v]; ok {
        return p
    } else {
        panic("regbank: use of " + v.String() + " before its definition")
    }
}

func (self *_Context) outputInfo(n *ir.Node) *_Info {
    if !n.HasDirectOutput() {
        panic("regbank: " + n.String() + " has no direct output")
    }
    return self.info[n.Value()]
}

/** Decisions **/

func (self *_Context) mandatoryOutput(n *ir.Node, gpr bool) {
    n.SetOutputRegisterBankDecision(gpr)
    self.outputInfo(n).mandatory(self, gpr)
}

func (self *_Context) undecidedOutput(n *ir.Node, gpr bool) {
    self.outputInfo(n).undecidedOutput(self, n, gpr)
}

func (self *_Context) mandatoryUse(e *ir.Edge, gpr bool) {
    e.SetShouldUseGPR(gpr)
    self.infoOf(e.Value()).mandatory(self, gpr)
}

func (self *_Context) undecidedUse(e *ir.Edge, gpr bool) {
    self.infoOf(e.Value()).undecidedUse(self, e, gpr)
}

// typeCheck makes the value available in the bank of the check. The bank
// bit of the edge belongs to the node, not the check, so it stays as is.
func (self *_Context) typeCheck(e *ir.Edge) {
    self.infoOf(e.Value()).mandatory(self, self.t.TypeCheckUsesGPR(e.UseKind()))
}

func (self *_Context) output(n *ir.Node, p traits.BankPref) {
    switch {
        case !p.Valid()     : panic("regbank: invalid output preference of " + n.String())
        case p.HasChoices() : self.undecidedOutput(n, p.GprPreferred())
        default             : self.mandatoryOutput(n, p.GprAllowed())
    }
}

func (self *_Context) operand(n *ir.Node, i int, p traits.BankPref) {
    switch e := n.InputEdge(i); {
        case !p.Valid()     : panic(fmt.Sprintf("regbank: invalid preference of operand %d of %s", i, n))
        case p.HasChoices() : self.undecidedUse(e, p.GprPreferred())
        default             : self.mandatoryUse(e, p.GprAllowed())
    }
}

// variant applies the traits of a register-allocation-enabled variant to
// the direct output and the first v.NumOperandsForRA() inputs of n.
func (self *_Context) variant(n *ir.Node, v *traits.Variant) {
    if v.HasOutput() != n.HasDirectOutput() {
        panic("regbank: output of " + n.String() + " does not match its traits")
    }
    if n.HasExtraOutput() && n.IsBuiltin() {
        panic("regbank: builtin " + n.String() + " has extra outputs")
    }
    if v.HasOutput() {
        self.output(n, v.Output)
    }
    for i := 0; i < v.NumOperandsForRA(); i++ {
        self.operand(n, i, v.Operand(i))
    }
}

/** Blocks **/

func (self *_Context) block(bb *ir.BasicBlock) {
    if len(self.pending) != 0 {
        panic("regbank: undecided values crossed a block boundary")
    }
    for _, n := range bb.Nodes {
        self.define(n)
        self.node(n)
    }
    self.finishAndAdvance()
}

func (self *_Context) define(n *ir.Node) {
    if n.IsConstantLike() || n.Is(ir.KindPhi) {
        panic("regbank: unexpected " + n.Kind().String() + " in a basic block")
    }
    for i := 0; i < n.NumTotalOutputs(); i++ {
        ord := uint16(i)
        if !n.HasDirectOutput() {
            ord++
        }
        self.info[n.Output(ord)] = new(_Info)
    }
}

func (self *_Context) node(n *ir.Node) {
    n.ForEachInputEdge(func(e *ir.Edge) {
        if e.NeedsTypeCheck() {
            self.typeCheck(e)
        }
    })

    /* guest nodes */
    if !n.IsBuiltin() {
        self.guest(n)
        return
    }

    /* builtins with a single trait entry */
    if v := self.t.Builtin(n.Kind()); v != nil {
        if !v.IsRegAllocEnabled() || v.NumOperandsForRA() != n.NumInputs() {
            panic("regbank: " + n.String() + " does not match its traits")
        }
        self.variant(n, v)
        return
    }

    /* builtins with bespoke codegen */
    switch n.Kind() {
        case ir.KindNop                     : break
        case ir.KindShadowStore             : break
        case ir.KindShadowStoreUndefToRange : break
        case ir.KindPhantom                 : break
        case ir.KindCreateVariadicRes       : self.createVariadicRes(n)
        case ir.KindPrependVariadicRes      : self.prependVariadicRes(n)
        case ir.KindCreateFunctionObject    : self.createFunctionObject(n)
        case ir.KindReturn                  : self.ret(n)
        default                             : panic("regbank: no traits for " + n.String())
    }
}

func (self *_Context) createVariadicRes(n *ir.Node) {
    if n.NumInputs() == 0 {
        panic("regbank: CreateVariadicRes without the extra count")
    }
    self.mandatoryUse(n.InputEdge(0), true)
    for i := 1; i < n.NumInputs(); i++ {
        self.undecidedUse(n.InputEdge(i), true)
    }
}

func (self *_Context) prependVariadicRes(n *ir.Node) {
    n.ForEachInputEdge(func(e *ir.Edge) {
        self.undecidedUse(e, true)
    })
}

// createFunctionObject: the operands are read from the stack with register
// allocation disabled, but may stay in a register afterwards.
func (self *_Context) createFunctionObject(n *ir.Node) {
    self.finishAndAdvance()
    for i := 0; i < n.NumInputs(); i++ {
        if e := n.InputEdge(i); i < 2 {
            self.mandatoryUse(e, true)
        } else {
            self.undecidedUse(e, true)
        }
    }
    self.mandatoryOutput(n, true)
}

func (self *_Context) ret(n *ir.Node) {
    n.ForEachInputEdge(func(e *ir.Edge) {
        self.undecidedUse(e, true)
    })
    self.finishAndAdvance()
}

// guest: range operands are spilled first, then the checks run, then the
// node itself, which spills everything if it disables register allocation.
func (self *_Context) guest(n *ir.Node) {
    op := self.t.Opcode(n.Opcode())
    nargs := n.NumInputs()

    /* operand shape */
    if nargs < op.FixedOperands || (!op.RangeOperand && nargs != op.FixedOperands) {
        panic(fmt.Sprintf("regbank: %s has %d inputs, opcode %s takes %d", n, nargs, op.Name, op.FixedOperands))
    }

    /* range operands can come from either bank */
    for i := op.FixedOperands; i < nargs; i++ {
        self.undecidedUse(n.InputEdge(i), true)
    }

    /* the fixed operands follow the variant */
    if v := self.t.GuestVariant(n.Opcode(), n.Variant()); !v.IsRegAllocEnabled() {
        self.finishAndAdvance()
    } else if v.NumOperandsForRA() != op.FixedOperands {
        panic("regbank: variant of " + n.String() + " does not cover the fixed operands")
    } else {
        self.variant(n, v)
    }
}
