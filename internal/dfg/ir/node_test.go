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

package ir

import (
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestNode_CountsMustBeSet(t *testing.T) {
    g, _ := newTestGraph(1)
    n := g.newNode(KindNop)
    require.Panics(t, func() { n.NumInputs() })
    require.Panics(t, func() { n.HasDirectOutput() })
    n.SetNumInputs(0)
    n.SetNumOutputs(false, 0)
    require.Panics(t, func() { n.SetNumInputs(1) })
    require.Panics(t, func() { n.SetNumOutputs(true, 0) })
}

func TestNode_OutlinedInputs(t *testing.T) {
    g, _ := newTestGraph(1)
    n := g.NewGuestNode(7, 5, true, 2)
    require.True(t, n.HasOutlinedInput())
    for i := 0; i < 5; i++ {
        n.SetInput(i, g.GetConstant(uint64(i)))
    }
    for i := 0; i < 5; i++ {
        assert.Equal(t, uint64(i), g.Node(n.InputEdge(i).Operand()).ConstantValue())
    }
    assert.Equal(t, 3, n.NumTotalOutputs())
    assert.True(t, n.IsOutputOrdValid(2))
    assert.False(t, n.IsOutputOrdValid(3))
    assert.Equal(t, Value { n.Ref(), 2 }, n.Output(2))
    require.Panics(t, func() { n.InputEdge(5) })
    require.Panics(t, func() { n.SetInput(0, Value { n.Ref(), 3 }) })

    m := g.NewGuestNode(7, 1, false, 1)
    require.False(t, m.IsOutputOrdValid(0))
    require.Panics(t, func() { m.Value() })
}

func TestNode_NodeSpecificData(t *testing.T) {
    g, _ := newTestGraph(1)
    n := g.NewGuestNode(1, 0, true, 0)
    n.SetNodeSpecificDataLength(4)
    assert.False(t, n.HasOutlinedNodeSpecificData())
    n.SetParamAsUInt64(0x1122334455667788)
    assert.Equal(t, []byte { 0x88, 0x77, 0x66, 0x55 }, n.NodeSpecificData()[:4])

    m := g.NewGuestNode(1, 0, true, 0)
    m.SetNodeSpecificDataLength(24)
    assert.True(t, m.HasOutlinedNodeSpecificData())
    assert.Len(t, m.NodeSpecificData(), 24)
    require.Panics(t, func() { g.NewNop().SetNodeSpecificDataLength(1) })
}

func TestNode_BuiltinPayloads(t *testing.T) {
    g, _ := newTestGraph(1)
    u := g.GetUnboxedConstant(9)
    assert.True(t, g.NewGetUpvalue(g.GetRootFunctionObject(), 3, true).IsUpvalueImmutable())
    assert.False(t, g.NewGetUpvalue(g.GetRootFunctionObject(), 3, false).IsUpvalueImmutable())
    assert.Equal(t, uint32(3), g.NewGetUpvalue(g.GetRootFunctionObject(), 3, true).UpvalueOrdinal())
    assert.Equal(t, uint32(4), g.NewSetUpvalue(g.GetRootFunctionObject(), 4, u).UpvalueOrdinal())
    assert.Equal(t, int64(-3), g.NewU64SaturateSub(u, -3).ValueToSub())
    assert.Equal(t, uint64(10), g.NewCheckU64InBound(u, 10).U64Bound())
    assert.Equal(t, int64(-1), g.NewCreateFunctionObject(g.GetConstant(1), g.GetRootFunctionObject(), -1).SelfReferenceUpvalue())
    assert.Equal(t, NewInterpreterSlot(6), g.NewShadowStore(NewInterpreterSlot(6), u).ShadowStoreInterpreterSlot())

    start, n := g.NewShadowStoreUndefToRange(NewInterpreterSlot(2), 5).ShadowStoreUndefRange()
    assert.Equal(t, NewInterpreterSlot(2), start)
    assert.Equal(t, uint32(5), n)

    cvr := g.NewCreateVariadicRes(u, g.GetConstant(1), g.GetConstant(2))
    assert.Equal(t, uint64(2), cvr.NumFixedVariadicResTerms())
    assert.Equal(t, 3, cvr.NumInputs())
    assert.Equal(t, uint64(4), g.NewGetKthVariadicRes(4, cvr.Ref()).VariadicResOrdinal())
    require.Panics(t, func() { g.NewGetNumVariadicRes(g.NewNop().Ref()) })
    require.Panics(t, func() { cvr.ValueToSub() })
}

func TestEdge_ProofIsMonotonic(t *testing.T) {
    g, _ := newTestGraph(1)
    e := g.NewEdge(g.GetConstant(1), UseKindKnownUnboxedInt64, false)
    require.True(t, e.NeedsTypeCheck())
    e.SetProven(true)
    require.False(t, e.NeedsTypeCheck())
    require.Panics(t, func() { e.SetProven(false) })

    s := g.NewEdge(g.GetConstant(1), UseKindFirstProven + 2, true)
    require.False(t, s.NeedsTypeCheck())
    require.Panics(t, func() { s.SetStaticallyProven(false) })
    assert.Equal(t, "%4(uk2, static)", s.String())

    s.SetShouldUseGPR(true)
    s.SetKill(true)
    assert.True(t, s.ShouldUseGPR())
    assert.True(t, s.IsKill())
    s.SetShouldUseGPR(false)
    assert.False(t, s.ShouldUseGPR())
    require.Panics(t, func() { g.NewEdge(Value { s.Operand(), 1 }, UseKindUntyped, false) })
}

func TestNode_ConvertToNop(t *testing.T) {
    g, _ := newTestGraph(1)
    n := g.NewGuestNode(2, 4, true, 1)
    for i := 0; i < 4; i++ {
        n.SetInput(i, g.GetConstant(uint64(i + 10)))
    }
    n.InputEdge(1).SetUseKind(UseKindKnownUnboxedInt64)
    n.InputEdge(2).SetUseKind(UseKindFirstProven)
    n.InputEdge(2).SetProven(true)
    n.InputEdge(3).SetUseKind(UseKindAlwaysOsrExit)
    n.Flags().SetMayOsrExit(true)
    n.Flags().SetBarrier(true)
    n.Flags().SetInlinerSpecialization(false, 3)

    n.ConvertToNop()
    require.True(t, n.Is(KindNop))
    require.Equal(t, 2, n.NumInputs())
    assert.Equal(t, g.GetConstant(11), n.InputEdge(0).Value())
    assert.Equal(t, g.GetConstant(13), n.InputEdge(1).Value())
    assert.Equal(t, 0, n.NumTotalOutputs())
    assert.False(t, n.Flags().IsBarrier())
    assert.False(t, n.Flags().IsSpecializedForInlining())
    assert.True(t, n.MayOsrExit())

    n.ConvertToNopAndForceRemoveAllInputs()
    assert.Equal(t, 0, n.NumInputs())
    assert.False(t, n.MayOsrExit())
}

func TestFlags_InlinerSpecialization(t *testing.T) {
    var f Flags
    require.Equal(t, SISNone, f.InlinerSpecialization())
    require.Panics(t, func() { f.InlinerICSite() })
    f.SetInlinerSpecialization(true, MaxInlinerICSiteOrdinal)
    f.SetBarrier(true)
    assert.Equal(t, SISPrologue, f.InlinerSpecialization())
    assert.Equal(t, uint8(MaxInlinerICSiteOrdinal), f.InlinerICSite())
    f.SetInlinerSpecialization(false, 0)
    assert.Equal(t, SISEpilogue, f.InlinerSpecialization())
    assert.Equal(t, uint8(0), f.InlinerICSite())
    assert.True(t, f.IsBarrier())
    require.Panics(t, func() { f.SetInlinerSpecialization(true, MaxInlinerICSiteOrdinal + 1) })
}

func TestNode_ControlFlowSuccessors(t *testing.T) {
    g, _ := newTestGraph(1)
    n := g.NewGuestNode(0, 0, false, 0)
    assert.Equal(t, 1, n.NumControlFlowSuccessors())
    n.Flags().SetHasBranchTarget(true)
    assert.Equal(t, 2, n.NumControlFlowSuccessors())
    n.Flags().SetBarrier(true)
    assert.Equal(t, 1, n.NumControlFlowSuccessors())
    assert.False(t, n.IsTerminal())

    tc := g.NewGuestNode(1, 0, false, 0)
    tc.Flags().SetBarrier(true)
    tc.Flags().SetMakesTailCall(true)
    assert.Equal(t, 0, tc.NumControlFlowSuccessors())
    tc.Flags().SetTailCallTransformedToNormalCall(true)
    assert.Equal(t, 1, tc.NumControlFlowSuccessors())
    tc.Flags().SetHasBranchTarget(true)
    require.Panics(t, func() { tc.NumControlFlowSuccessors() })
}

func TestDSU_FindAndAttach(t *testing.T) {
    var d DSU
    for i := NodeRef(1); i <= 6; i++ {
        d.MakeSet(i)
    }
    d.Attach(1, 2)
    d.Attach(2, 3)
    d.Attach(4, 3)
    assert.Equal(t, NodeRef(3), d.Find(1))
    assert.Equal(t, NodeRef(3), d.Find(4))
    assert.Equal(t, NodeRef(5), d.Find(5))
    assert.Equal(t, NodeRef(3), d.parent[1])
    assert.True(t, d.IsRoot(3))
    assert.False(t, d.IsRoot(2))
    require.Panics(t, func() { d.Attach(2, 5) })
    require.Panics(t, func() { d.Find(9) })
    require.Panics(t, func() { d.MakeSet(0) })
}

func TestBasicBlock_RemoveEmptyNopNodes(t *testing.T) {
    g, _ := newTestGraph(1)
    bb := g.NewBasicBlock()
    keep := g.NewPhantom(g.GetConstant(1))
    bb.Nodes = []*Node { g.NewNop(), keep, g.NewNop() }
    seal(bb, g.NewBasicBlock())
    bb.RemoveEmptyNopNodes()
    require.Equal(t, []*Node { keep }, bb.Nodes)
    require.Same(t, keep, bb.Terminator)

    only := g.NewBasicBlock()
    last := g.NewNop()
    only.Nodes = []*Node { g.NewNop(), last }
    seal(only, bb)
    only.RemoveEmptyNopNodes()
    require.Equal(t, []*Node { last }, only.Nodes)
}

func TestBasicBlock_MergeSuccessorBlock(t *testing.T) {
    g, _ := newTestGraph(1)
    a, b := g.NewBasicBlock(), g.NewBasicBlock()
    cvr := g.NewCreateVariadicRes(g.GetUnboxedConstant(0), g.GetConstant(1))
    a.Nodes = []*Node { g.NewNop(), cvr }
    seal(a, b)

    pre := g.NewPrependVariadicRes(0)
    num := g.NewGetNumVariadicRes(pre.Ref())
    ret := g.NewReturn(num.Value())
    b.Nodes = []*Node { pre, num, ret }
    seal(b)
    g.ComputeReachabilityAndPredecessors()
    require.NoError(t, g.Validate(ValidateOptions{}))

    a.MergeSuccessorBlock(b)
    require.Equal(t, 4, len(a.Nodes))
    assert.Same(t, num, a.Nodes[2])
    assert.Equal(t, cvr.Ref(), num.VariadicResultInputNode())
    assert.Same(t, ret, a.GetTerminator())
    assert.Equal(t, 0, a.NumSuccessors())
    assert.Equal(t, 0, b.NumSuccessors())

    g.Blocks = g.Blocks[:1]
    require.NoError(t, g.Validate(ValidateOptions{}))
    require.Panics(t, func() { a.MergeSuccessorBlock(b) })
}

func TestBasicBlock_MergeKeepsInheritWithoutProducer(t *testing.T) {
    g, _ := newTestGraph(1)
    a, b, c := g.NewBasicBlock(), g.NewBasicBlock(), g.NewBasicBlock()
    a.Nodes = []*Node { g.NewNop() }
    seal(a, b)
    pre := g.NewPrependVariadicRes(0)
    b.Nodes = []*Node { pre }
    seal(b, c)
    c.Nodes = []*Node { g.NewReturn() }
    seal(c)
    g.ComputeReachabilityAndPredecessors()

    a.MergeSuccessorBlock(b)
    require.Equal(t, 2, len(a.Nodes))
    require.Same(t, pre, a.Nodes[1])
    require.Same(t, a, c.Predecessors[0])
    require.Same(t, c, a.Successor(0))
}
