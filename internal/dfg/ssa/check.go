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

// checkHeadTail verifies that every local has at most a GetLocal as its
// first event and a SetLocal as its last in bb.
func (self *_Builder) checkHeadTail(bb *ir.BasicBlock, setUp bool) {
    head, tail := bb.LocalInfoAtHead, bb.LocalInfoAtTail
    seen := make(map[ir.NodeRef]bool)

    /* every access is an event */
    for _, n := range bb.Nodes {
        if !n.HasLogicalVariableInfo() {
            continue
        }
        lo := self.localOrd(n)
        ev := ir.FromNode(n.Ref())
        if head[lo] != ev && tail[lo] != ev {
            panic(fmt.Sprintf("ssa: %%%d is neither the first nor the last access of local %d in %s", n.Ref(), lo, bb))
        }
        if seen[n.Ref()] {
            panic(fmt.Sprintf("ssa: %%%d appears twice in %s", n.Ref(), bb))
        }
        seen[n.Ref()] = true
        if n.Is(ir.KindGetLocal) && setUp != (n.DataFlowInfoForGetLocal() != 0) {
            panic(fmt.Sprintf("ssa: data flow info of %%%d is in an unexpected state", n.Ref()))
        }
    }

    /* every event is an access in this block */
    for lo := range head {
        h, t := head[lo], tail[lo]
        switch {
            case h.IsNil() != t.IsNil()             : panic(fmt.Sprintf("ssa: half-set events for local %d in %s", lo, bb))
            case h.IsNil()                          : continue
            case (h == self.undef) != (t == self.undef) : panic(fmt.Sprintf("ssa: inconsistent UndefValue events for local %d in %s", lo, bb))
        }
        if h == self.undef {
            for _, pred := range bb.Predecessors {
                if pred.LocalInfoAtTail[lo] != self.undef {
                    panic(fmt.Sprintf("ssa: local %d is undefined at the head of %s but not at the tail of %s", lo, bb, pred))
                }
            }
            continue
        }
        if h.IsPhi() {
            if h != t {
                panic(fmt.Sprintf("ssa: pass-through Phi of local %d in %s is not the tail", lo, bb))
            }
            continue
        }
        if t.IsPhi() || !seen[h.AsNode()] || !seen[t.AsNode()] {
            panic(fmt.Sprintf("ssa: events of local %d do not belong to %s", lo, bb))
        }
        if h != t && (self.kindOf(h) != ir.KindGetLocal || self.kindOf(t) != ir.KindSetLocal) {
            panic(fmt.Sprintf("ssa: local %d in %s must be read first and written last", lo, bb))
        }
    }
}

func (self *_Builder) checkPhiPosition(phi *ir.Phi, tail bool) {
    ev := phi.BasicBlock().LocalInfoAtHead[phi.LocalOrd()]
    if tail {
        ev = phi.BasicBlock().LocalInfoAtTail[phi.LocalOrd()]
    }
    switch {
        case ev.IsNil()                  : panic(fmt.Sprintf("ssa: phi%d has no event", phi.Ref()))
        case ev.IsPhi()                  : if ev.AsPhi() == phi.Ref() { return }
        case self.kindOf(ev) == ir.KindGetLocal : if self.g.Node(ev.AsNode()).DataFlowInfoForGetLocal() == phi.Ref() { return }
    }
    panic(fmt.Sprintf("ssa: phi%d is not at the expected place in %s", phi.Ref(), phi.BasicBlock()))
}

// checkInvariants verifies the Phi graph against the IR: every Phi sits
// where it belongs, agrees with its predecessors, can see a store and is
// transitively read by a GetLocal; every store is either read or
// bytecode-live.
func (self *_Builder) checkInvariants(pre bool) {
    self.g.AssertReplacementIsComplete()
    for _, bb := range self.g.Blocks {
        self.checkHeadTail(bb, true)
    }

    /* collect the Phis and the stores */
    phis := make(map[ir.PhiRef]bool)
    stores := make(map[ir.NodeRef]bool)
    for _, bb := range self.g.Blocks {
        for _, n := range bb.Nodes {
            switch n.Kind() {
                case ir.KindSetLocal: {
                    stores[n.Ref()] = false
                }
                case ir.KindGetLocal: {
                    phi := self.g.Phi(n.DataFlowInfoForGetLocal())
                    if phis[phi.Ref()] {
                        panic(fmt.Sprintf("ssa: phi%d is shared by two GetLocals", phi.Ref()))
                    }
                    if pre && phi.OriginNodeForUnification() != n.Ref() {
                        panic(fmt.Sprintf("ssa: phi%d does not originate from %%%d", phi.Ref(), n.Ref()))
                    }
                    if !pre && phi.LogicalVariable() != n.LogicalVariable() {
                        panic(fmt.Sprintf("ssa: phi%d and %%%d disagree on the logical variable", phi.Ref(), n.Ref()))
                    }
                    phis[phi.Ref()] = true
                }
            }
        }
        for _, ev := range bb.LocalInfoAtHead {
            if !ev.IsNil() && ev.IsPhi() {
                phis[ev.AsPhi()] = true
            }
        }
    }

    /* check every Phi against its predecessors */
    for ref := range phis {
        phi := self.g.Phi(ref)
        bb := phi.BasicBlock()
        self.checkPhiPosition(phi, false)
        if phi.IsTriviallyUndefValue() {
            panic(fmt.Sprintf("ssa: phi%d can never see a store", ref))
        }
        if phi.NumIncomingValues() != len(bb.Predecessors) {
            panic(fmt.Sprintf("ssa: phi%d has %d incoming values for %d predecessors", ref, phi.NumIncomingValues(), len(bb.Predecessors)))
        }
        for i, pred := range bb.Predecessors {
            in := phi.IncomingValue(i)
            switch self.kindOf(in) {
                case ir.KindPhi: {
                    src := self.g.Phi(in.AsPhi())
                    if !phis[src.Ref()] || src.LocalOrd() != phi.LocalOrd() || src.BasicBlock() != pred {
                        panic(fmt.Sprintf("ssa: phi%d has a malformed incoming phi%d", ref, src.Ref()))
                    }
                    self.checkPhiPosition(src, true)
                    if !pre && src.LogicalVariable() != phi.LogicalVariable() {
                        panic(fmt.Sprintf("ssa: phi%d and phi%d disagree on the logical variable", ref, src.Ref()))
                    }
                }
                case ir.KindSetLocal: {
                    if pred.LocalInfoAtTail[phi.LocalOrd()] != in {
                        panic(fmt.Sprintf("ssa: phi%d has an incoming store that is not the tail of %s", ref, pred))
                    }
                    if _, ok := stores[in.AsNode()]; !ok {
                        panic(fmt.Sprintf("ssa: phi%d has an incoming store outside the graph", ref))
                    }
                    if !pre && self.g.Node(in.AsNode()).LogicalVariable() != phi.LogicalVariable() {
                        panic(fmt.Sprintf("ssa: phi%d and its store disagree on the logical variable", ref))
                    }
                    stores[in.AsNode()] = true
                }
                case ir.KindUndefValue: {
                    if pred.LocalInfoAtTail[phi.LocalOrd()] != self.undef {
                        panic(fmt.Sprintf("ssa: phi%d sees UndefValue but %s does not end with it", ref, pred))
                    }
                }
                default: {
                    panic(fmt.Sprintf("ssa: phi%d has a malformed incoming value %s", ref, in))
                }
            }
        }
    }

    /* a dead store must at least be bytecode-live */
    for _, bb := range self.g.Blocks {
        for _, n := range bb.Nodes {
            if n.Is(ir.KindSetLocal) && !stores[n.Ref()] && !bb.IsSetLocalNodeBytecodeLiveAtTail(n) {
                panic(fmt.Sprintf("ssa: dead store %%%d was not removed", n.Ref()))
            }
        }
    }

    /* no stray Phis */
    st := lane.NewStack()
    for _, bb := range self.g.Blocks {
        for _, n := range bb.Nodes {
            if n.Is(ir.KindGetLocal) {
                delete(phis, n.DataFlowInfoForGetLocal())
                st.Push(n.DataFlowInfoForGetLocal())
            }
        }
    }
    for !st.Empty() {
        phi := self.g.Phi(st.Pop().(ir.PhiRef))
        for i := 0; i < phi.NumIncomingValues(); i++ {
            if in := phi.IncomingValue(i); in.IsPhi() && phis[in.AsPhi()] {
                delete(phis, in.AsPhi())
                st.Push(in.AsPhi())
            }
        }
    }
    if len(phis) != 0 {
        panic(fmt.Sprintf("ssa: %d Phis are not read by any GetLocal", len(phis)))
    }
}
