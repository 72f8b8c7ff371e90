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
    `strings`
    `testing`

    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func newTestGraph(numLocals uint32) (*Graph, *InlinedCallFrame) {
    cb := &CodeBlock { Name: "test", NumLocals: numLocals }
    g := NewGraph(cb)
    root := NewRootFrame(cb, new(VirtualRegisterAllocator))
    g.RegisterNewInlinedCallFrame(root)
    return g, root
}

func seal(bb *BasicBlock, succs ...*BasicBlock) {
    bb.Terminator = bb.Nodes[len(bb.Nodes) - 1]
    bb.SetSuccessors(succs...)
}

func TestGraph_ConstantCaches(t *testing.T) {
    g, _ := newTestGraph(2)
    a := g.GetConstant(5)
    assert.Equal(t, a, g.GetConstant(5))
    assert.NotEqual(t, a, g.GetUnboxedConstant(5))
    assert.Equal(t, g.GetUnboxedConstant(0), g.GetRootFunctionNumVarArgs())
    assert.Equal(t, g.GetArgumentNode(3), g.GetArgumentNode(3))
    assert.Equal(t, uint32(3), g.Node(g.GetArgumentNode(3).Node).ArgumentOrdinal())
    assert.Equal(t, uint32(1), g.Node(g.GetRootFunctionVariadicArg(1).Node).VariadicArgOrdinal())
    assert.True(t, g.Node(g.GetUndefValue().Node).IsConstantLike())
    assert.True(t, g.Node(g.GetRootFunctionObject().Node).Is(KindGetFunctionObject))
    n := 0
    g.ForEachConstantLikeNode(func(*Node) { n++ })
    assert.Equal(t, g.NumNodes(), n)
}

func TestGraph_RootWithVarArgs(t *testing.T) {
    g := NewGraph(&CodeBlock { Name: "va", HasVariadicArguments: true })
    require.True(t, g.Node(g.GetRootFunctionNumVarArgs().Node).Is(KindGetNumVariadicArgs))
}

func TestGraph_Forms(t *testing.T) {
    g, _ := newTestGraph(1)
    require.True(t, g.IsPreUnificationForm())
    require.Panics(t, g.DegradeToLoadStoreForm)
    g.UpgradeToLoadStoreForm()
    require.Panics(t, g.UpgradeToLoadStoreForm)
    g.UpgradeToBlockLocalSSAForm()
    require.True(t, g.IsBlockLocalSSAForm())
    g.DegradeToLoadStoreForm()
    require.True(t, g.IsLoadStoreForm())
}

func TestGraph_FrameRegistration(t *testing.T) {
    g, root := newTestGraph(3)
    assert.Equal(t, uint32(0), root.Ordinal())
    callee := NewInlinedFrame(&CodeBlock { Name: "callee", NumLocals: 2 }, InlineSite {
        Caller           : NewCodeOrigin(root, 0),
        IsDirectCall     : true,
        StaticNumVarArgs : true,
        Base             : NewInterpreterSlot(3 + NumSlotsForStackFrameHeader),
    })
    g.RegisterNewInlinedCallFrame(callee)
    assert.Equal(t, uint32(1), callee.Ordinal())
    assert.Equal(t, 2, g.NumInlinedCallFrames())
    assert.Equal(t, uint32(9), g.TotalNumInterpreterSlots())
    require.Panics(t, func() { g.RegisterNewInlinedCallFrame(callee) })
    require.Panics(t, func() { g.RegisterNewInlinedCallFrame(NewRootFrame(&CodeBlock{}, new(VirtualRegisterAllocator))) })
}

func TestGraph_FirstLocalPhysicalSlot(t *testing.T) {
    g, _ := newTestGraph(1)
    assert.Equal(t, uint32(DefaultFirstLocalPhysicalSlot), g.FirstLocalPhysicalSlot())
    g.SetFirstLocalPhysicalSlot(5)
    assert.Equal(t, uint32(5), g.FirstLocalPhysicalSlot())
    require.Panics(t, func() { g.SetFirstLocalPhysicalSlot(1) })
}

func TestGraph_Phis(t *testing.T) {
    g, root := newTestGraph(2)
    bb := g.NewBasicBlock()
    get := g.NewGetLocal(root, LocalLocation(1))
    p := g.AllocatePhi(2, bb, 1, PhiOrigin { get.Ref() })
    assert.Equal(t, p, g.Phi(p.Ref()))
    assert.Equal(t, get.Ref(), p.OriginNodeForUnification())
    assert.True(t, p.IsTriviallyUndefValue())
    assert.Panics(t, func() { p.LogicalVariable() })
    p.SetIncomingValue(0, FromPhi(p.Ref()))
    assert.True(t, p.IncomingValue(0).IsPhi())
    assert.True(t, p.IncomingValue(1).IsNil())
    g.FreeMemoryForAllPhi()
    assert.Equal(t, 0, g.NumPhis())
    assert.Panics(t, func() { g.Phi(p.Ref()) })
}

func TestGraph_LogicalVariables(t *testing.T) {
    g, root := newTestGraph(3)
    get1 := g.NewGetLocal(root, LocalLocation(1))
    get2 := g.NewGetLocal(root, LocalLocation(1))
    set1 := g.NewSetLocal(root, LocalLocation(1), g.GetConstant(1))
    get0 := g.NewGetLocal(root, LocalLocation(0))
    require.Panics(t, func() { g.MergeLogicalVariableInfo(get1, get0) })

    /* unify all accesses to local 1 */
    g.MergeLogicalVariableInfo(get1, set1)
    g.MergeLogicalVariableInfo(set1, get2)
    g.MergeLogicalVariableInfo(get2, get1)
    for _, n := range []*Node { get2, get1, set1, get0 } {
        g.SetupLogicalVariableInfoAfterDsuMerge(n)
    }

    lv := get1.LogicalVariable()
    assert.Same(t, lv, get2.LogicalVariable())
    assert.Same(t, lv, set1.LogicalVariable())
    assert.NotSame(t, lv, get0.LogicalVariable())
    assert.Equal(t, uint32(0), lv.Ordinal())
    assert.Equal(t, uint32(1), get0.LogicalVariable().Ordinal())
    assert.Equal(t, NewVirtualRegister(1), lv.VirtualRegister())
    assert.Equal(t, NewInterpreterSlot(1), lv.InterpreterSlot())
    assert.Len(t, g.AllLogicalVariables(), 2)

    lv.RefineProvenType(0xf0)
    lv.RefineProvenType(0x3c)
    assert.Equal(t, TypeMask(0x30), lv.ProvenType())
    require.Panics(t, func() { g.RegisterLogicalVariable(lv) })
}

func buildDiamond(g *Graph) []*BasicBlock {
    bbs := make([]*BasicBlock, 5)
    for i := range bbs {
        bbs[i] = g.NewBasicBlock()
    }
    bbs[0].SetSuccessors(bbs[1], bbs[2])
    bbs[1].SetSuccessors(bbs[3])
    bbs[2].SetSuccessors(bbs[3])
    bbs[3].SetSuccessors()
    bbs[4].SetSuccessors(bbs[3])
    return bbs
}

func TestGraph_ReachabilityAndPredecessors(t *testing.T) {
    g, _ := newTestGraph(1)
    bbs := buildDiamond(g)
    require.False(t, g.IsCfgAvailable())
    g.ComputeReachabilityAndPredecessors()
    require.True(t, g.IsCfgAvailable())

    assert.Equal(t, []*BasicBlock { bbs[1], bbs[2] }, bbs[3].Predecessors)
    assert.Empty(t, bbs[4].Predecessors)
    assert.False(t, bbs[4].IsReachable())
    assert.Equal(t, uint32(1), bbs[2].PredOrdForSuccessor(0))

    g.RemoveTriviallyUnreachableBlocks()
    assert.Len(t, g.Blocks, 4)
    require.NoError(t, g.CheckCfgConsistent())

    /* changing successors invalidates the CFG */
    bbs[1].SetSuccessors(bbs[3])
    require.False(t, g.IsCfgAvailable())
    require.Panics(t, g.RemoveTriviallyUnreachableBlocks)
}

func TestGraph_DuplicatedSuccessor(t *testing.T) {
    g, _ := newTestGraph(1)
    a, b := g.NewBasicBlock(), g.NewBasicBlock()
    a.SetSuccessors(b, b)
    b.SetSuccessors()
    g.ComputeReachabilityAndPredecessors()
    require.Len(t, b.Predecessors, 1)
    require.Equal(t, a.PredOrdForSuccessor(0), a.PredOrdForSuccessor(1))
    require.NoError(t, g.CheckCfgConsistent())
}

func TestGraph_CheckCfgConsistentDetectsEntryBranch(t *testing.T) {
    g, _ := newTestGraph(1)
    a, b := g.NewBasicBlock(), g.NewBasicBlock()
    a.SetSuccessors(b)
    b.SetSuccessors(a)
    g.ComputeReachabilityAndPredecessors()
    err := g.CheckCfgConsistent()
    require.Error(t, err)
    require.Contains(t, err.Error(), "entry")
}

func TestGraph_Replacement(t *testing.T) {
    g, _ := newTestGraph(1)
    bb := g.NewBasicBlock()
    c := g.GetConstant(7)
    cv := g.NewCreateCapturedVar(c)
    get := g.NewGetCapturedVar(cv.Value())
    ret := g.NewReturn(get.Value())
    bb.Nodes = []*Node { cv, get, ret }
    seal(bb)

    require.Panics(t, func() { g.Node(c.Node).SetReplacement(c) })
    get.SetReplacement(c)
    require.Panics(t, g.AssertReplacementIsComplete)
    for _, n := range bb.Nodes {
        n.DoReplacementForInputsAndSetReferenceBit()
    }
    assert.Equal(t, c, ret.InputEdge(0).Value())
    assert.True(t, g.Node(c.Node).Flags().IsReferenced())
    assert.True(t, cv.Flags().IsReferenced())

    g.ClearAllReplacementsAndIsReferencedBit()
    g.AssertReplacementIsComplete()
    assert.False(t, cv.Flags().IsReferenced())
}

func TestGraph_Validate(t *testing.T) {
    g, _ := newTestGraph(1)
    bb0, bb1, bb2 := g.NewBasicBlock(), g.NewBasicBlock(), g.NewBasicBlock()

    br := g.NewGuestNode(3, 1, false, 0)
    br.SetInput(0, g.GetConstant(1))
    br.Flags().SetHasBranchTarget(true)
    bb0.Nodes = []*Node { g.NewNop(), br }
    seal(bb0, bb1, bb2)

    cv := g.NewCreateCapturedVar(g.GetUndefValue())
    bb1.Nodes = []*Node { cv, g.NewReturn(cv.Value()) }
    seal(bb1)

    bb2.Nodes = []*Node { g.NewReturn() }
    seal(bb2)
    require.NoError(t, g.Validate(ValidateOptions{}), g.Dump())

    /* values do not cross blocks */
    bb2.Nodes = []*Node { g.NewReturn(cv.Value()) }
    seal(bb2)
    err := g.Validate(ValidateOptions{})
    require.Error(t, err)
    require.Contains(t, err.Error(), "not defined earlier")

    /* unreachable blocks */
    bb2.Nodes = []*Node { g.NewReturn() }
    seal(bb2)
    bb3 := g.NewBasicBlock()
    bb3.Nodes = []*Node { g.NewReturn() }
    seal(bb3)
    require.Error(t, g.Validate(ValidateOptions{}))
    require.NoError(t, g.Validate(ValidateOptions { AllowUnreachableBlocks: true }))

    /* an exit where exiting is not allowed */
    chk := g.NewCheckU64InBound(g.GetUnboxedConstant(1), 4)
    bb3.Nodes = []*Node { chk, g.NewReturn() }
    seal(bb3)
    require.Error(t, g.Validate(ValidateOptions { AllowUnreachableBlocks: true }))
    chk.Flags().SetExitOK(true)
    require.NoError(t, g.Validate(ValidateOptions { AllowUnreachableBlocks: true }))
}

func TestGraph_ValidateVariadicResults(t *testing.T) {
    g, _ := newTestGraph(1)
    bb := g.NewBasicBlock()
    cvr := g.NewCreateVariadicRes(g.GetUnboxedConstant(0), g.GetConstant(1))
    num := g.NewGetNumVariadicRes(cvr.Ref())
    cvr2 := g.NewCreateVariadicRes(g.GetUnboxedConstant(0))
    bb.Nodes = []*Node { cvr, num, g.NewReturn() }
    seal(bb)
    require.NoError(t, g.Validate(ValidateOptions{}))

    /* a later producer clobbers the earlier results */
    bb.Nodes = []*Node { cvr, cvr2, num, g.NewReturn() }
    seal(bb)
    require.Error(t, g.Validate(ValidateOptions{}))
}

func TestGraph_Dump(t *testing.T) {
    g, root := newTestGraph(2)
    bb := g.NewBasicBlock()
    get := g.NewGetLocal(root, LocalLocation(1))
    bb.Nodes = []*Node { get, g.NewSetLocal(root, LocalLocation(0), get.Value()), g.NewReturn() }
    seal(bb)
    s := g.Dump()
    assert.True(t, strings.Contains(s, "GetLocal<loc1@"), s)
    assert.True(t, strings.Contains(s, "bb0: -> []"), s)
    assert.True(t, strings.Contains(s, "UnboxedConstant<0>"), spew.Sdump(g.Blocks))
}
