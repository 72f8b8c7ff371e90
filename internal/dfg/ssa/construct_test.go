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
    `testing`

    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

type testGraph struct {
    *ir.Graph
    root *ir.InlinedCallFrame
    live *ir.BytecodeLiveness
    bbs  []*ir.BasicBlock
}

// newTestGraph creates numBlocks blocks in the root frame. Block i starts at
// bytecode i, and every local is dead until setLive says otherwise.
func newTestGraph(numLocals uint32, numBlocks int) *testGraph {
    cb := &ir.CodeBlock { Name: "test", NumLocals: numLocals }
    g := ir.NewGraph(cb)
    root := ir.NewRootFrame(cb, new(ir.VirtualRegisterAllocator))
    g.RegisterNewInlinedCallFrame(root)
    live := ir.NewBytecodeLiveness(numBlocks, int(numLocals))
    root.SetBytecodeLiveness(live)
    ret := &testGraph { Graph: g, root: root, live: live }
    for i := 0; i < numBlocks; i++ {
        bb := g.NewBasicBlock()
        if i != 0 {
            bb.BcForInterpreterStateAtBBStart = ir.NewCodeOrigin(root, uint32(i))
        }
        ret.bbs = append(ret.bbs, bb)
    }
    return ret
}

func (self *testGraph) setLive(bb int, locals ...uint32) {
    for _, lo := range locals {
        self.live.SetLive(uint32(bb), ir.BeforeUse, lo, true)
    }
}

func (self *testGraph) get(lo uint32) *ir.Node {
    return self.NewGetLocal(self.root, ir.LocalLocation(lo))
}

func (self *testGraph) set(lo uint32, v ir.Value) *ir.Node {
    return self.NewSetLocal(self.root, ir.LocalLocation(lo), v)
}

func (self *testGraph) branch(v ir.Value) *ir.Node {
    ret := self.NewGuestNode(3, 1, false, 0)
    ret.SetInput(0, v)
    return ret
}

func (self *testGraph) fill(bb int, nodes []*ir.Node, succs ...int) {
    blk := self.bbs[bb]
    blk.Nodes = nodes
    blk.Terminator = nodes[len(nodes) - 1]
    targets := make([]*ir.BasicBlock, len(succs))
    for i, s := range succs {
        targets[i] = self.bbs[s]
    }
    blk.SetSuccessors(targets...)
}

func (self *testGraph) phiOf(n *ir.Node) *ir.Phi {
    return self.Phi(n.DataFlowInfoForGetLocal())
}

func TestConstruct_Diamond(t *testing.T) {
    g := newTestGraph(3, 4)
    c1, c2, c3, c4, c5 := g.GetConstant(1), g.GetConstant(2), g.GetConstant(3), g.GetConstant(4), g.GetConstant(5)

    /* bb0: L0 = 1, L1 = 2, branch */
    s0 := g.set(0, c1)
    s1 := g.set(1, c2)
    g.fill(0, []*ir.Node { s0, s1, g.branch(c1) }, 1, 2)

    /* bb1: L0 = 3, L0 = 4 */
    s0b := g.set(0, c3)
    s0c := g.set(0, c4)
    g.fill(1, []*ir.Node { s0b, s0c, g.NewNop() }, 3)

    /* bb2: read L1 twice, L2 = L1, L1 = 5 */
    g1 := g.get(1)
    g1b := g.get(1)
    ph := g.NewPhantom(g1b.Value())
    s2 := g.set(2, g1.Value())
    s1b := g.set(1, c5)
    g.fill(2, []*ir.Node { g1, g1b, ph, s2, s1b, g.NewNop() }, 3)

    /* bb3: return L0, L2 */
    g0 := g.get(0)
    g2 := g.get(2)
    ret := g.NewReturn(g0.Value(), g2.Value())
    g.fill(3, []*ir.Node { g0, g2, ret })

    g.setLive(1, 0)
    g.setLive(2, 0, 1)
    g.setLive(3, 0, 2)
    g.ComputeReachabilityAndPredecessors()
    ConstructBlockLocalSSA(g.Graph)
    require.True(t, g.IsBlockLocalSSAForm(), spew.Sdump(g.Form()))

    /* canonicalization */
    assert.True(t, s0b.Is(ir.KindNop))
    assert.NotContains(t, g.bbs[1].Nodes, s0b)
    assert.True(t, g1b.Is(ir.KindNop))
    assert.Equal(t, g1.Value(), ph.InputEdge(0).Value())

    /* the last store to L1 in bb2 is dead both ways */
    assert.True(t, s1b.Is(ir.KindNop))
    assert.Equal(t, ir.FromNode(g1.Ref()), g.bbs[2].LocalInfoAtTail[1])

    /* L0 at bb3 merges a store and a pass-through Phi */
    p0 := g.phiOf(g0)
    require.Equal(t, 2, p0.NumIncomingValues())
    assert.Equal(t, ir.FromNode(s0c.Ref()), p0.IncomingValue(0))
    require.True(t, p0.IncomingValue(1).IsPhi())
    pass := g.Phi(p0.IncomingValue(1).AsPhi())
    assert.Same(t, g.bbs[2], pass.BasicBlock())
    assert.Equal(t, ir.FromNode(s0.Ref()), pass.IncomingValue(0))
    assert.False(t, p0.MaybeUndefValue())

    /* L2 may be undefined when coming from bb1 */
    p2 := g.phiOf(g2)
    assert.True(t, p2.MaybeUndefValue())
    assert.False(t, p2.IsTriviallyUndefValue())
    assert.Equal(t, ir.FromNode(s2.Ref()), p2.IncomingValue(1))

    /* one logical variable per local */
    lv0 := g0.LogicalVariable()
    assert.Same(t, lv0, s0.LogicalVariable())
    assert.Same(t, lv0, s0c.LogicalVariable())
    assert.Same(t, lv0, p0.LogicalVariable())
    assert.Same(t, lv0, pass.LogicalVariable())
    assert.Same(t, s1.LogicalVariable(), g1.LogicalVariable())
    assert.Same(t, s2.LogicalVariable(), g2.LogicalVariable())
    assert.NotSame(t, lv0, g1.LogicalVariable())
    assert.NotSame(t, lv0, g2.LogicalVariable())
    assert.Len(t, g.AllLogicalVariables(), 3)
}

func TestConstruct_TriviallyUndefRead(t *testing.T) {
    g := newTestGraph(1, 3)
    g.fill(0, []*ir.Node { g.NewNop() }, 1)

    /* a loop reading a local nobody ever writes */
    rd := g.get(0)
    br := g.branch(rd.Value())
    g.fill(1, []*ir.Node { rd, br }, 1, 2)
    g.fill(2, []*ir.Node { g.NewReturn() })

    g.ComputeReachabilityAndPredecessors()
    ConstructBlockLocalSSA(g.Graph)
    assert.True(t, rd.Is(ir.KindNop))
    assert.NotContains(t, g.bbs[1].Nodes, rd)
    assert.Equal(t, g.GetUndefValue(), br.InputEdge(0).Value())
    assert.Equal(t, ir.FromNode(g.GetUndefValue().Node), g.bbs[1].LocalInfoAtHead[0])
    assert.Equal(t, ir.FromNode(g.GetUndefValue().Node), g.bbs[1].LocalInfoAtTail[0])
}

func TestConstruct_LoopUnifiesStores(t *testing.T) {
    g := newTestGraph(2, 3)
    s := g.set(0, g.GetConstant(0))
    g.fill(0, []*ir.Node { s, g.NewNop() }, 1)

    /* bb1: L0 = f(L0), loop */
    rd := g.get(0)
    inc := g.NewU64SaturateSub(rd.Value(), 1)
    wr := g.set(0, inc.Value())
    g.fill(1, []*ir.Node { rd, inc, wr, g.branch(inc.Value()) }, 1, 2)

    /* bb2: return L0 */
    out := g.get(0)
    g.fill(2, []*ir.Node { out, g.NewReturn(out.Value()) })

    g.setLive(1, 0)
    g.setLive(2, 0)
    g.ComputeReachabilityAndPredecessors()
    ConstructBlockLocalSSA(g.Graph)

    p := g.phiOf(rd)
    require.Equal(t, []*ir.BasicBlock { g.bbs[0], g.bbs[1] }, g.bbs[1].Predecessors)
    assert.Equal(t, ir.FromNode(s.Ref()), p.IncomingValue(0))
    assert.Equal(t, ir.FromNode(wr.Ref()), p.IncomingValue(1))
    assert.Equal(t, ir.FromNode(wr.Ref()), g.phiOf(out).IncomingValue(0))

    lv := rd.LogicalVariable()
    for _, n := range []*ir.Node { s, wr, out } {
        assert.Same(t, lv, n.LogicalVariable())
    }
    assert.Len(t, g.AllLogicalVariables(), 1)
    assert.Equal(t, ir.NewInterpreterSlot(0), lv.InterpreterSlot())
}

func TestConstruct_BytecodeLiveStoreSurvives(t *testing.T) {
    g := newTestGraph(1, 2)
    s := g.set(0, g.GetConstant(9))
    g.fill(0, []*ir.Node { s, g.NewNop() }, 1)
    g.fill(1, []*ir.Node { g.NewReturn() })

    /* nothing reads it, but the interpreter would */
    g.setLive(1, 0)
    g.ComputeReachabilityAndPredecessors()
    ConstructBlockLocalSSA(g.Graph)
    assert.True(t, s.Is(ir.KindSetLocal))
    assert.Contains(t, g.bbs[0].Nodes, s)
}

func TestConstruct_Misuse(t *testing.T) {
    g := newTestGraph(1, 1)
    g.fill(0, []*ir.Node { g.NewReturn() })
    require.Panics(t, func() { ConstructBlockLocalSSA(g.Graph) })

    /* used but bytecode-dead */
    g = newTestGraph(1, 2)
    g.fill(0, []*ir.Node { g.set(0, g.GetConstant(1)), g.NewNop() }, 1)
    rd := g.get(0)
    g.fill(1, []*ir.Node { rd, g.NewReturn(rd.Value()) })
    g.ComputeReachabilityAndPredecessors()
    require.Panics(t, func() { ConstructBlockLocalSSA(g.Graph) })

    /* twice */
    g = newTestGraph(1, 1)
    g.fill(0, []*ir.Node { g.NewReturn() })
    g.ComputeReachabilityAndPredecessors()
    ConstructBlockLocalSSA(g.Graph)
    require.Panics(t, func() { ConstructBlockLocalSSA(g.Graph) })
}
