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

package cfa

import (
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/dfg/internal/dfg/bytecode`
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

func liveAt(lv *ir.BytecodeLiveness, bc uint32, point ir.LivenessPoint) (r []int) {
    lv.Liveness(bc, point).Range(func(i int) bool { r = append(r, i); return true })
    return
}

func TestLiveness_StraightLine(t *testing.T) {
    b := bytecode.NewBuilder("line", 3)
    b.Op("mov", 2).Writes(1).Reads(0)
    b.Op("add", 2).Reads(0, 1).Writes(2)
    b.Return("ret", 2).Reads(2)
    s := build(t, b)
    lv := ComputeBytecodeLiveness(s, Analyze(s))
    require.Equal(t, 3, lv.NumBytecodes())
    assert.Equal(t, []int { 0 }, liveAt(lv, 0, ir.BeforeUse))
    assert.Equal(t, []int { 0 }, liveAt(lv, 0, ir.AfterUse))
    assert.Equal(t, []int { 0, 1 }, liveAt(lv, 1, ir.BeforeUse))
    assert.Empty(t, liveAt(lv, 1, ir.AfterUse))
    assert.Equal(t, []int { 2 }, liveAt(lv, 2, ir.BeforeUse))
    assert.Empty(t, liveAt(lv, 2, ir.AfterUse))
}

func TestLiveness_CapturedLocal(t *testing.T) {
    b := bytecode.NewBuilder("captured", 3)
    b.Op("mov", 2).Writes(1)
    b.CreateClosure("fnew", 2, bytecode.UpvalueMetadata { IsParentLocal: true, Slot: 1 }).Writes(2)
    b.Op("mov", 2).Writes(1)
    b.Branch("istc", 2, 5).Reads(0)
    b.Op("nop", 2)
    b.UpvalueClose("uclo", 2, 1, 6)
    b.Return("ret", 2).Reads(2)
    s := build(t, b)
    res := Analyze(s)
    require.Equal(t, []int { 0, 8, 10, 12 }, offsets(res.Blocks))
    lv := ComputeBytecodeLiveness(s, res)

    /* the closure turns L1 into a captured variable and writes L2 */
    assert.Equal(t, []int { 0 }, liveAt(lv, 0, ir.AfterUse))
    assert.Equal(t, []int { 0, 1 }, liveAt(lv, 1, ir.BeforeUse))
    assert.Equal(t, []int { 0 }, liveAt(lv, 1, ir.AfterUse))

    /* writing the captured L1 goes to the captured variable and does not kill it */
    assert.Equal(t, []int { 0, 1, 2 }, liveAt(lv, 2, ir.BeforeUse))
    assert.Equal(t, []int { 0, 1, 2 }, liveAt(lv, 2, ir.AfterUse))
    assert.Equal(t, []int { 1, 2 }, liveAt(lv, 4, ir.BeforeUse))

    /* the upvalue close reads L1 and writes it back */
    assert.Equal(t, []int { 1, 2 }, liveAt(lv, 5, ir.BeforeUse))
    assert.Equal(t, []int { 2 }, liveAt(lv, 5, ir.AfterUse))
    assert.Equal(t, []int { 2 }, liveAt(lv, 6, ir.BeforeUse))
}

func TestLiveness_SelfReference(t *testing.T) {
    b := bytecode.NewBuilder("self", 2)
    b.CreateClosure("fnew", 2, bytecode.UpvalueMetadata { IsParentLocal: true, Slot: 0 }).Writes(0)
    b.CreateClosure("fnew", 2, bytecode.UpvalueMetadata { IsParentLocal: true, Slot: 0 }).Writes(0)
    b.Return("ret", 2)
    s := build(t, b)
    lv := ComputeBytecodeLiveness(s, Analyze(s))

    /* the first closure creates the captured variable, the second one reads it */
    assert.Empty(t, liveAt(lv, 0, ir.BeforeUse))
    assert.Equal(t, []int { 0 }, liveAt(lv, 1, ir.BeforeUse))
    assert.Equal(t, []int { 0 }, liveAt(lv, 2, ir.BeforeUse))
}

func TestLiveness_Loop(t *testing.T) {
    b := bytecode.NewBuilder("loop", 2)
    b.Op("kset", 2).Writes(0)
    b.Op("add", 2).Reads(0, 1).Writes(0)
    b.Branch("loop", 2, 1).Reads(0)
    b.Return("ret", 2)
    s := build(t, b)
    lv := ComputeBytecodeLiveness(s, Analyze(s))

    /* L1 is never written, so it is live around the whole loop */
    assert.Equal(t, []int { 1 }, liveAt(lv, 0, ir.BeforeUse))
    assert.Equal(t, []int { 0, 1 }, liveAt(lv, 1, ir.BeforeUse))
    assert.Equal(t, []int { 1 }, liveAt(lv, 1, ir.AfterUse))
    assert.Equal(t, []int { 0, 1 }, liveAt(lv, 2, ir.BeforeUse))
    assert.Equal(t, []int { 0, 1 }, liveAt(lv, 2, ir.AfterUse))
    assert.Empty(t, liveAt(lv, 3, ir.BeforeUse))
}

func TestLiveness_UnreachableBytecode(t *testing.T) {
    b := bytecode.NewBuilder("dead", 1)
    b.Return("ret", 2).Reads(0)
    b.Op("mov", 2).Reads(0)
    b.Return("ret", 2)
    s := build(t, b)
    lv := ComputeBytecodeLiveness(s, Analyze(s))
    require.Equal(t, 3, lv.NumBytecodes())
    assert.Equal(t, []int { 0 }, liveAt(lv, 0, ir.BeforeUse))
    assert.Empty(t, liveAt(lv, 1, ir.BeforeUse))
}

func TestLiveness_Malformed(t *testing.T) {
    b := bytecode.NewBuilder("nodst", 1)
    b.CreateClosure("fnew", 2)
    b.Return("ret", 2)
    s := build(t, b)
    require.Panics(t, func() { ComputeBytecodeLiveness(s, Analyze(s)) })
}

func TestLiveness_Random(t *testing.T) {
    faker := gofakeit.New(4321)
    for round := 0; round < 200; round++ {
        s := randomStream(faker, faker.Number(1, 40), faker.Number(1, 80))
        res := Analyze(s)
        lv := ComputeBytecodeLiveness(s, res)
        require.Equal(t, len(s.Ins), lv.NumBytecodes())

        for _, bb := range res.Blocks {
            end := bb.BytecodeIndex + bb.NumBytecodes - 1

            /* the tail is the union of the successor heads */
            tail := lv.Liveness(uint32(end), ir.AfterUse).Copy()
            tail.Reset()
            for _, succ := range bb.Successors {
                tail.Or(lv.Liveness(uint32(succ.BytecodeIndex), ir.BeforeUse))
            }
            for _, v := range s.Ins[end].Defs {
                if !bb.CapturedAtTail.IsSet(int(v)) {
                    tail.Clear(int(v))
                }
            }
            require.True(t, lv.Liveness(uint32(end), ir.AfterUse).IsSubsetOf(tail), s.String())

            /* every plain read is live before the bytecode, and the state
             * only grows from after to before */
            for i := bb.BytecodeIndex; i <= end; i++ {
                p := s.Ins[i]
                before, after := lv.Liveness(uint32(i), ir.BeforeUse), lv.Liveness(uint32(i), ir.AfterUse)
                if p.Closure == nil {
                    for _, v := range p.Uses {
                        require.True(t, before.IsSet(int(v)), s.String())
                    }
                }
                require.True(t, after.IsSubsetOf(before), s.String())
                if i < end {
                    require.True(t, after.IsSubsetOf(lv.Liveness(uint32(i + 1), ir.BeforeUse)), s.String())
                }
            }
        }
    }
}
