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

package ssa

import (
    `fmt`

    `github.com/oleiade/lane`
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

type _Builder struct {
    g     *ir.Graph
    nl    int
    undef ir.PhiOrNode
    phis  []*ir.Phi
}

// ConstructBlockLocalSSA canonicalizes the local accesses of every block,
// builds the Phi data flow graph at block boundaries, removes dead stores
// and replaces reads that can only see UndefValue. A pre-unification graph
// is also unified: every GetLocal and SetLocal gets its logical variable.
// Requires up-to-date predecessors and leaves the graph in block-local SSA
// form.
func ConstructBlockLocalSSA(g *ir.Graph) {
    if !g.IsCfgAvailable() {
        panic("ssa: control flow graph is stale")
    }
    if g.IsBlockLocalSSAForm() {
        panic("ssa: graph is already in block-local SSA form")
    }

    /* set up the builder */
    pre := g.IsPreUnificationForm()
    self := &_Builder {
        g     : g,
        nl    : int(g.TotalNumLocals()),
        undef : ir.FromNode(g.GetUndefValue().Node),
    }

    /* build the Phi graph */
    self.allocateStateArrays()
    self.canonicalizeAll()
    self.buildPhiGraph(pre)
    self.checkInvariants(pre)

    /* unify the accesses */
    if pre {
        self.setupLogicalVariables()
        self.checkInvariants(false)
    }

    /* drop the Nops left behind */
    for _, bb := range g.Blocks {
        bb.RemoveEmptyNopNodes()
    }
    g.UpgradeToBlockLocalSSAForm()
}

func (self *_Builder) kindOf(p ir.PhiOrNode) ir.NodeKind {
    if p.IsPhi() {
        return ir.KindPhi
    } else {
        return self.g.Node(p.AsNode()).Kind()
    }
}

func (self *_Builder) localOrd(n *ir.Node) int {
    if ord := int(n.LocalVirtualRegister().Value()); ord >= self.nl {
        panic(fmt.Sprintf("ssa: %%%d accesses local %d beyond %d locals", n.Ref(), ord, self.nl))
    } else {
        return ord
    }
}

func (self *_Builder) allocateStateArrays() {
    if self.nl == 0 {
        panic("ssa: graph has no locals")
    }
    for _, bb := range self.g.Blocks {
        if len(bb.LocalInfoAtHead) != self.nl {
            bb.LocalInfoAtHead = make([]ir.PhiOrNode, self.nl)
            bb.LocalInfoAtTail = make([]ir.PhiOrNode, self.nl)
        }
    }
}

/** Canonicalization **/

func (self *_Builder) canonicalizeAll() {
    self.g.ClearAllReplacementsAndIsReferencedBit()
    for _, bb := range self.g.Blocks {
        self.canonicalize(bb)
    }
    self.g.AssertReplacementIsComplete()
}

// canonicalize leaves at most one GetLocal (the first event) and one
// SetLocal (the last event) per local in bb.
func (self *_Builder) canonicalize(bb *ir.BasicBlock) {
    head, tail := bb.LocalInfoAtHead, bb.LocalInfoAtTail
    init := ir.PhiOrNode{}

    /* nothing branches to the entry block, every local is undefined there */
    if bb == self.g.EntryBlock() {
        init = self.undef
    }
    for i := range head {
        head[i], tail[i] = init, init
    }

    /* forward local accesses */
    for _, n := range bb.Nodes {
        n.DoReplacementForInputsAndSetReferenceBit()
        switch n.Kind() {
            case ir.KindGetLocal: self.canonicalizeGetLocal(bb, n)
            case ir.KindSetLocal: self.canonicalizeSetLocal(bb, n)
        }
    }

    /* drop the GetLocals nobody reads */
    for _, n := range bb.Nodes {
        if n.Is(ir.KindGetLocal) && !n.Flags().IsReferenced() {
            lo := self.localOrd(n)
            if head[lo] != ir.FromNode(n.Ref()) {
                panic("ssa: GetLocal is not the head event of its local")
            }
            if tail[lo] == head[lo] {
                head[lo], tail[lo] = ir.PhiOrNode{}, ir.PhiOrNode{}
            } else {
                head[lo] = tail[lo]
            }
            n.ConvertToNop()
        }
    }
    self.checkHeadTail(bb, false)
}

func (self *_Builder) canonicalizeGetLocal(bb *ir.BasicBlock, n *ir.Node) {
    lo := self.localOrd(n)
    ev := bb.LocalInfoAtTail[lo]

    /* first event of this local */
    if ev.IsNil() {
        n.SetDataFlowInfoForGetLocal(0)
        bb.LocalInfoAtHead[lo] = ir.FromNode(n.Ref())
        bb.LocalInfoAtTail[lo] = ir.FromNode(n.Ref())
        return
    }

    /* the value is already known */
    switch self.kindOf(ev) {
        case ir.KindGetLocal    : n.SetReplacement(ir.Value { Node: ev.AsNode() })
        case ir.KindSetLocal    : n.SetReplacement(self.g.Node(ev.AsNode()).InputEdge(0).Value())
        case ir.KindUndefValue  : n.SetReplacement(self.g.GetUndefValue())
        default                 : panic("ssa: unexpected local event " + ev.String())
    }
    n.ConvertToNop()
}

func (self *_Builder) canonicalizeSetLocal(bb *ir.BasicBlock, n *ir.Node) {
    lo := self.localOrd(n)
    head, tail := bb.LocalInfoAtHead, bb.LocalInfoAtTail
    ev := tail[lo]

    /* first event of this local */
    if ev.IsNil() {
        head[lo], tail[lo] = ir.FromNode(n.Ref()), ir.FromNode(n.Ref())
        return
    }

    /* only the last store survives */
    switch self.kindOf(ev) {
        case ir.KindGetLocal: {
            tail[lo] = ir.FromNode(n.Ref())
        }
        case ir.KindUndefValue: {
            head[lo], tail[lo] = ir.FromNode(n.Ref()), ir.FromNode(n.Ref())
        }
        case ir.KindSetLocal: {
            if head[lo] == ev {
                head[lo] = ir.FromNode(n.Ref())
            }
            self.g.Node(ev.AsNode()).ConvertToNop()
            tail[lo] = ir.FromNode(n.Ref())
        }
        default: {
            panic("ssa: unexpected local event " + ev.String())
        }
    }
}

/** Phi data flow graph **/

func (self *_Builder) newPhi(bb *ir.BasicBlock, lo int, pre bool, like *ir.Phi, origin *ir.Node) *ir.Phi {
    var payload ir.PhiPayload
    switch {
        case like != nil && pre : payload = ir.PhiOrigin { Node: like.OriginNodeForUnification() }
        case like != nil        : payload = ir.PhiLogicalVar { Var: like.LogicalVariable() }
        case pre                : payload = ir.PhiOrigin { Node: origin.Ref() }
        default                 : payload = ir.PhiLogicalVar { Var: origin.LogicalVariable() }
    }
    ret := self.g.AllocatePhi(len(bb.Predecessors), bb, uint32(lo), payload)
    self.phis = append(self.phis, ret)
    return ret
}

// forEachPhiSuccessor calls fn for every Phi that has phi as its incoming
// value from phi's block.
func (self *_Builder) forEachPhiSuccessor(phi *ir.Phi, fn func(succ *ir.Phi, incoming int)) {
    bb := phi.BasicBlock()
    lo := phi.LocalOrd()

    /* a store hides the Phi from the successors */
    if self.kindOf(bb.LocalInfoAtTail[lo]) == ir.KindSetLocal {
        return
    }

    /* check every successor */
    for i := 0; i < bb.NumSuccessors(); i++ {
        var succ *ir.Phi
        ev := bb.Successor(i).LocalInfoAtHead[lo]

        /* find the Phi at the head of the successor */
        if ev.IsNil() {
            continue
        }
        switch self.kindOf(ev) {
            case ir.KindGetLocal   : succ = self.g.Phi(self.g.Node(ev.AsNode()).DataFlowInfoForGetLocal())
            case ir.KindPhi        : succ = self.g.Phi(ev.AsPhi())
            case ir.KindSetLocal   : continue
            case ir.KindUndefValue : continue
            default                : panic("ssa: unexpected local event " + ev.String())
        }

        /* sanity check */
        ord := int(bb.PredOrdForSuccessor(i))
        if succ.IncomingValue(ord) != ir.FromPhi(phi.Ref()) {
            panic(fmt.Sprintf("ssa: phi%d is not the incoming value of phi%d", phi.Ref(), succ.Ref()))
        }
        fn(succ, ord)
    }
}

func (self *_Builder) buildPhiGraph(pre bool) {
    self.g.FreeMemoryForAllPhi()
    self.phis = self.phis[:0]
    q := lane.NewStack()

    /* every GetLocal reads a Phi */
    for _, bb := range self.g.Blocks {
        for _, n := range bb.Nodes {
            if n.Is(ir.KindGetLocal) {
                phi := self.newPhi(bb, self.localOrd(n), pre, nil, n)
                n.SetDataFlowInfoForGetLocal(phi.Ref())
                q.Push(phi)
            }
        }
    }

    /* pull the incoming values from the predecessors, creating pass-through Phis */
    q2 := lane.NewStack()
    q3 := lane.NewStack()
    hasUndef := false

    /* build the incoming edges */
    for !q.Empty() {
        phi := q.Pop().(*ir.Phi)
        bb := phi.BasicBlock()
        lo := phi.LocalOrd()

        /* check every predecessor */
        for i, pred := range bb.Predecessors {
            ev := pred.LocalInfoAtTail[lo]
            if ev.IsNil() {
                in := self.newPhi(pred, int(lo), pre, phi, nil)
                pred.LocalInfoAtHead[lo] = ir.FromPhi(in.Ref())
                pred.LocalInfoAtTail[lo] = ir.FromPhi(in.Ref())
                phi.SetIncomingValue(i, ir.FromPhi(in.Ref()))
                q.Push(in)
                continue
            }
            switch self.kindOf(ev) {
                case ir.KindGetLocal: {
                    phi.SetIncomingValue(i, ir.FromPhi(self.g.Node(ev.AsNode()).DataFlowInfoForGetLocal()))
                }
                case ir.KindSetLocal: {
                    phi.SetNotTriviallyUndefValue()
                    phi.SetIncomingValue(i, ev)
                }
                case ir.KindUndefValue: {
                    hasUndef = true
                    phi.SetIncomingValue(i, ev)
                    phi.SetMaybeUndefValue()
                    q3.Push(phi)
                }
                case ir.KindPhi: {
                    phi.SetIncomingValue(i, ev)
                }
                default: {
                    panic("ssa: unexpected local event " + ev.String())
                }
            }
        }

        /* phis that directly see a store seed the propagation */
        if !phi.IsTriviallyUndefValue() {
            q2.Push(phi)
        }
    }

    /* without UndefValue anywhere every Phi sees a store, unreachable blocks are gone */
    if !hasUndef {
        for _, phi := range self.phis {
            phi.SetNotTriviallyUndefValue()
        }
    } else {
        self.propagate(q2, (*ir.Phi).IsTriviallyUndefValue, (*ir.Phi).SetNotTriviallyUndefValue)
        self.propagate(q3, func(p *ir.Phi) bool { return !p.MaybeUndefValue() }, (*ir.Phi).SetMaybeUndefValue)
        self.replaceTriviallyUndefPhis()
    }
    self.removeDeadAccesses()
}

func (self *_Builder) propagate(q *lane.Stack, pending func(*ir.Phi) bool, mark func(*ir.Phi)) {
    for !q.Empty() {
        self.forEachPhiSuccessor(q.Pop().(*ir.Phi), func(succ *ir.Phi, _ int) {
            if pending(succ) {
                mark(succ)
                q.Push(succ)
            }
        })
    }
}

func (self *_Builder) replaceTriviallyUndefPhis() {
    for _, phi := range self.phis {
        if !phi.IsTriviallyUndefValue() {
            continue
        }

        /* successors see UndefValue instead */
        self.forEachPhiSuccessor(phi, func(succ *ir.Phi, ord int) {
            succ.SetIncomingValue(ord, self.undef)
        })

        /* so does the block itself */
        bb, lo := phi.BasicBlock(), phi.LocalOrd()
        if bb.LocalInfoAtHead[lo] == ir.FromPhi(phi.Ref()) {
            bb.LocalInfoAtHead[lo] = self.undef
            bb.LocalInfoAtTail[lo] = self.undef
        }
    }
}

// removeDeadAccesses removes SetLocals that are dead in both the graph and
// the bytecode, and turns GetLocals that can only see UndefValue into
// UndefValue.
func (self *_Builder) removeDeadAccesses() {
    for _, bb := range self.g.Blocks {
        replaced := false
        head, tail := bb.LocalInfoAtHead, bb.LocalInfoAtTail

        /* scan every node */
        for _, n := range bb.Nodes {
            if replaced {
                n.DoReplacementForInputs()
            }

            /* GetLocal that never sees a store */
            if n.Is(ir.KindGetLocal) {
                if self.g.Phi(n.DataFlowInfoForGetLocal()).IsTriviallyUndefValue() {
                    lo := self.localOrd(n)
                    if tail[lo] == ir.FromNode(n.Ref()) {
                        head[lo], tail[lo] = self.undef, self.undef
                    } else if self.kindOf(tail[lo]) != ir.KindSetLocal {
                        panic("ssa: GetLocal followed by something other than a SetLocal")
                    } else {
                        head[lo] = tail[lo]
                    }
                    n.SetReplacement(self.g.GetUndefValue())
                    n.ConvertToNop()
                    replaced = true
                }
                continue
            }

            /* SetLocal nobody reads */
            if n.Is(ir.KindSetLocal) {
                lo := self.localOrd(n)
                if tail[lo] != ir.FromNode(n.Ref()) {
                    panic("ssa: SetLocal is not the tail event of its local")
                }
                used := self.hasUsers(bb, lo)
                live := bb.IsSetLocalNodeBytecodeLiveAtTail(n)
                if used && !live {
                    panic(fmt.Sprintf("ssa: %%%d is used but bytecode-dead", n.Ref()))
                }
                if !used && !live {
                    if head[lo] == tail[lo] {
                        head[lo], tail[lo] = ir.PhiOrNode{}, ir.PhiOrNode{}
                    } else {
                        tail[lo] = head[lo]
                    }
                    n.ConvertToNop()
                }
            }
        }
    }
}

func (self *_Builder) hasUsers(bb *ir.BasicBlock, lo int) bool {
    for i := 0; i < bb.NumSuccessors(); i++ {
        ev := bb.Successor(i).LocalInfoAtHead[lo]
        if ev.IsNil() {
            continue
        }
        if ev.IsPhi() || self.kindOf(ev) == ir.KindGetLocal {
            return true
        }
    }
    return false
}

/** Unification **/

func (self *_Builder) headPhis() []*ir.Phi {
    var ret []*ir.Phi
    for _, bb := range self.g.Blocks {
        for _, ev := range bb.LocalInfoAtHead {
            if ev.IsNil() {
                continue
            }
            if ev.IsPhi() {
                ret = append(ret, self.g.Phi(ev.AsPhi()))
            } else if n := self.g.Node(ev.AsNode()); n.Is(ir.KindGetLocal) {
                ret = append(ret, self.g.Phi(n.DataFlowInfoForGetLocal()))
            }
        }
    }
    return ret
}

// setupLogicalVariables unifies every store that can flow into a read, so
// they end up with the same logical variable.
func (self *_Builder) setupLogicalVariables() {
    phis := self.headPhis()

    /* merge along the Phi edges */
    for _, phi := range phis {
        a := self.g.Node(phi.OriginNodeForUnification())
        for i := 0; i < phi.NumIncomingValues(); i++ {
            in := phi.IncomingValue(i)
            switch self.kindOf(in) {
                case ir.KindPhi        : self.g.MergeLogicalVariableInfo(a, self.g.Node(self.g.Phi(in.AsPhi()).OriginNodeForUnification()))
                case ir.KindSetLocal   : self.g.MergeLogicalVariableInfo(a, self.g.Node(in.AsNode()))
                case ir.KindUndefValue : break
                default                : panic("ssa: unexpected incoming value " + in.String())
            }
        }
    }

    /* every access gets the variable of its root */
    for _, bb := range self.g.Blocks {
        for _, n := range bb.Nodes {
            if n.HasLogicalVariableInfo() {
                self.g.SetupLogicalVariableInfoAfterDsuMerge(n)
            }
        }
    }

    /* so does every Phi */
    for _, phi := range phis {
        phi.SetLogicalVariable(self.g.Node(phi.OriginNodeForUnification()).LogicalVariable())
    }
}
