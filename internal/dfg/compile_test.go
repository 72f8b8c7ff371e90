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
    `os`
    `path/filepath`
    `sync/atomic`
    `testing`

    `github.com/cloudwego/dfg/internal/dfg/ir`
    `github.com/cloudwego/dfg/internal/dfg/stacklayout`
    `github.com/cloudwego/dfg/internal/dfg/traits`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

type testUnit struct {
    *Unit
    s0, s1, g0 *ir.Node
}

// newTestUnit builds
//
//     bb0: L0 = 1; if truthy(1) goto bb2
//     bb1: L0 = 2; goto bb3
//     bb2: goto bb3
//     bb3: return L0
//
func newTestUnit() *testUnit {
    cb := &ir.CodeBlock { Name: "test", NumLocals: 1 }
    g := ir.NewGraph(cb)
    root := ir.NewRootFrame(cb, new(ir.VirtualRegisterAllocator))
    g.RegisterNewInlinedCallFrame(root)

    /* L0 is read by bb3, and through the empty bb2 */
    live := ir.NewBytecodeLiveness(4, 1)
    live.SetLive(2, ir.BeforeUse, 0, true)
    live.SetLive(3, ir.BeforeUse, 0, true)
    root.SetBytecodeLiveness(live)

    /* create the blocks */
    bbs := make([]*ir.BasicBlock, 4)
    for i := range bbs {
        bbs[i] = g.NewBasicBlock()
        if i != 0 {
            bbs[i].BcForInterpreterStateAtBBStart = ir.NewCodeOrigin(root, uint32(i))
        }
    }

    /* bb0 */
    s0 := g.NewSetLocal(root, ir.LocalLocation(0), g.GetConstant(1))
    br := g.NewGuestNode(3, 1, true, 0)
    br.SetInput(0, g.GetConstant(1))
    br.Flags().SetHasBranchTarget(true)
    bbs[0].Nodes = []*ir.Node { s0, br }
    bbs[0].Terminator = br
    bbs[0].SetSuccessors(bbs[1], bbs[2])

    /* bb1 */
    s1 := g.NewSetLocal(root, ir.LocalLocation(0), g.GetConstant(2))
    bbs[1].Nodes = []*ir.Node { s1, g.NewNop() }
    bbs[1].Terminator = bbs[1].Nodes[1]
    bbs[1].SetSuccessors(bbs[3])

    /* bb2 */
    bbs[2].Nodes = []*ir.Node { g.NewNop() }
    bbs[2].Terminator = bbs[2].Nodes[0]
    bbs[2].SetSuccessors(bbs[3])

    /* bb3 */
    g0 := g.NewGetLocal(root, ir.LocalLocation(0))
    ret := g.NewReturn(g0.Value())
    bbs[3].Nodes = []*ir.Node { g0, ret }
    bbs[3].Terminator = ret
    bbs[3].SetSuccessors()
    g.ComputeReachabilityAndPredecessors()

    /* build the unit */
    return &testUnit {
        Unit: &Unit {
            Graph  : g,
            Traits : traits.Default(),
            Limits : stacklayout.DefaultLimits(),
        },
        s0: s0,
        s1: s1,
        g0: g0,
    }
}

func TestCompile_Pipeline(t *testing.T) {
    u := newTestUnit()
    n := atomic.LoadUint32(&FnCount)
    require.NoError(t, Compile(context.Background(), u.Unit, true), u.Graph.Dump())
    assert.Equal(t, n + 1, atomic.LoadUint32(&FnCount))

    /* the empty block is gone */
    g := u.Graph
    require.True(t, g.IsBlockLocalSSAForm())
    assert.Len(t, g.Blocks, 3)

    /* every access to L0 shares one physical slot */
    slot := uint32(ir.DefaultFirstLocalPhysicalSlot)
    assert.Equal(t, slot, u.s0.PhysicalSlot())
    assert.Equal(t, slot, u.s1.PhysicalSlot())
    assert.Equal(t, slot, u.g0.PhysicalSlot())
    assert.Equal(t, slot + 1, u.Layout.NumTotalPhysicalSlots)
    assert.Equal(t, []uint64 { 1, 2 }, u.Layout.ConstantTable)

    /* the read sees both stores */
    phi := g.Phi(u.g0.DataFlowInfoForGetLocal())
    assert.Equal(t, 2, phi.NumIncomingValues())
    assert.Equal(t, u.s0.LogicalVariable(), u.g0.LogicalVariable())
    assert.Equal(t, u.s1.LogicalVariable(), u.g0.LogicalVariable())

    /* both stores and the read stay in a gpr */
    assert.True(t, u.g0.ShouldOutputRegisterBankUseGPR())
    assert.True(t, u.s0.InputEdge(0).ShouldUseGPR())
}

func TestCompile_Limits(t *testing.T) {
    u := newTestUnit()
    u.Limits.MaxConstants = 2
    assert.PanicsWithError(t, "LimitError: too many constants (2 >= 2)", func() {
        _ = Compile(context.Background(), u.Unit, false)
    })
}

func TestCompile_InvalidInput(t *testing.T) {
    u := newTestUnit()
    u.Graph.Blocks[3].Terminator = u.g0
    assert.Error(t, Compile(context.Background(), u.Unit, true))
}

func TestCompile_PassOrder(t *testing.T) {
    names := make([]string, 0, len(Passes))
    for _, p := range Passes {
        names = append(names, p.Name)
    }
    assert.Equal(t, []string {
        "Trivial CFG Cleanup",
        "Block-Local SSA Construction",
        "Register Bank Assignment",
        "Stack Layout Planning",
    }, names)
}

func TestCompile_LayoutSVG(t *testing.T) {
    u := newTestUnit()
    u.LayoutSVGDir = t.TempDir()
    require.NoError(t, Compile(context.Background(), u.Unit, false))
    buf, err := os.ReadFile(filepath.Join(u.LayoutSVGDir, "test.layout.svg"))
    require.NoError(t, err)
    assert.Contains(t, string(buf), "</svg>")

    /* an unusable directory does not fail the compilation */
    u = newTestUnit()
    u.LayoutSVGDir = filepath.Join(t.TempDir(), "missing")
    require.NoError(t, Compile(context.Background(), u.Unit, false))
    assert.NotNil(t, u.Layout)
}
