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

package stacklayout

import (
    `github.com/cloudwego/dfg/internal/dfg/ir`
    `tlog.app/go/errors`
)

const _Poison = uint64(1) << 63

type _LocalKey struct {
    frame *ir.InlinedCallFrame
    loc   int32
}

// Validate cross-checks a plan against the graph it was computed for. Every
// frame is rebuilt from its OSR record with fake physical slots (slot i
// holds i) and a fake constant table (entry i holds i - N), and the result
// must agree with what the frame says about each interpreter slot.
func Validate(g *ir.Graph, r *Result) error {
    if err := validateNodes(g, r); err != nil {
        return err
    }

    /* fake physical slots */
    stack := make([]uint64, r.NumTotalPhysicalSlots)
    for i := range stack {
        stack[i] = uint64(i)
    }

    /* fake constant table */
    table := make([]uint64, len(r.ConstantTable))
    for i := range table {
        table[i] = uint64(int64(i - len(table)))
    }

    /* check every frame */
    for i := 0; i < g.NumInlinedCallFrames(); i++ {
        if err := validateFrame(g, r, i, table, stack); err != nil {
            return errors.Wrap(err, "frame %d", i)
        }
    }
    return nil
}

func validateNodes(g *ir.Graph, r *Result) error {
    var err error
    first := g.FirstLocalPhysicalSlot()
    slots := make(map[_LocalKey]uint32)

    /* constants must be in the right part of the table */
    checkConstant := func(nd *ir.Node) {
        if err != nil {
            return
        }
        if !nd.IsOrdInConstantTableAssigned() {
            err = errors.New("%s has no constant table ordinal", nd)
        } else if ord := nd.ConstantTableOrd(); !r.isConstantOrd(ord) {
            err = errors.New("%s has invalid ordinal %d", nd, ord)
        } else if nd.Is(ir.KindConstant) != (ord >= -int64(r.NumBoxedConstants)) {
            err = errors.New("%s is in the wrong part of the constant table", nd)
        }
    }

    /* walk every node in every block */
    for _, bb := range g.Blocks {
        for _, nd := range bb.Nodes {
            nd.ForEachInputEdge(func(e *ir.Edge) {
                if op := g.Node(e.Operand()); op.Is(ir.KindConstant) || op.Is(ir.KindUnboxedConstant) {
                    checkConstant(op)
                }
            })

            /* bail out early on errors */
            if err != nil {
                return err
            }

            /* only local accesses carry a physical slot */
            if !nd.Is(ir.KindGetLocal) && !nd.Is(ir.KindSetLocal) {
                continue
            }

            /* the slot must be in range */
            if !nd.HasPhysicalSlot() {
                return errors.New("%s has no physical slot", nd)
            } else if ps := nd.PhysicalSlot(); ps < first || ps >= r.NumTotalPhysicalSlots {
                return errors.New("%s has invalid physical slot %d", nd, ps)
            }

            /* every access to a location agrees on the slot */
            key := _LocalKey { nd.LocalFrame(), nd.LocalLocation().Raw() }
            if ps, ok := slots[key]; !ok {
                slots[key] = nd.PhysicalSlot()
            } else if ps != nd.PhysicalSlot() {
                return errors.New("%s uses physical slot %d, expected %d", nd, nd.PhysicalSlot(), ps)
            }
        }
    }
    return nil
}

func (self *Result) isConstantOrd(ord int64) bool {
    return ord < 0 && ord >= -int64(len(self.ConstantTable))
}

func validateFrame(g *ir.Graph, r *Result, ord int, table []uint64, stack []uint64) error {
    fr := g.InlinedCallFrame(ord)
    info := r.OsrInfo(ord)
    base := fr.InterpreterSlotForStackFrameBase().Value()
    first := g.FirstLocalPhysicalSlot()

    /* raw values must be in range */
    for i := 0; i < int(info.FrameFullLength()); i++ {
        if v := int64(info.Value(i)); !r.isConstantOrd(v) && (v < 0 || v >= int64(r.NumTotalPhysicalSlots)) {
            return errors.New("slot %d has invalid value %d", i, v)
        }
    }

    /* the record covers every slot up to the frame end */
    n := info.InterpreterFramesTotalNumSlots()
    if n != int(base + fr.NumBytecodeLocals()) {
        return errors.New("record covers %d slots, the frame ends at %d", n, base + fr.NumBytecodeLocals())
    }

    /* rebuild the interpreter frames */
    out := make([]uint64, n)
    for i := range out {
        out[i] = _Poison
    }
    info.Reconstruct(table, stack, out)

    /* look at every reconstructed slot */
    used := make(map[uint64]bool)
    for i, v := range out {
        var vrm ir.VirtualRegisterMappingInfo
        if v == _Poison {
            return errors.New("slot %d is not reconstructed", i)
        }

        /* slots below the frame base have a known mapping */
        below := uint32(i) < base
        if below {
            vrm = fr.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(ir.NewInterpreterSlot(uint32(i)))
        }

        /* constants must match the mapping */
        if int64(v) < 0 {
            if !below || !vrm.IsLive() || !vrm.IsUnmapped() {
                return errors.New("slot %d holds a constant, but the frame does not say so", i)
            } else if c := g.Node(vrm.ConstantNode()).ConstantTableOrd(); c != int64(v) {
                return errors.New("slot %d holds constant %d, expected %d", i, int64(v), c)
            } else {
                continue
            }
        }

        /* constant slots must be reconstructed as constants */
        if below && vrm.IsLive() && vrm.IsUnmapped() {
            return errors.New("slot %d should hold a constant", i)
        }

        /* slot 0 means no SetLocal ever wrote it; dead slots may hold anything */
        if v == 0 || (below && !vrm.IsLive()) {
            continue
        }

        /* live physical slots are pairwise distinct */
        if v < uint64(first) {
            return errors.New("slot %d maps to reserved physical slot %d", i, v)
        } else if used[v] {
            return errors.New("physical slot %d is used twice", v)
        } else {
            used[v] = true
        }
    }

    /* the free list complements the live slots */
    st := r.frames[ord]
    for _, v := range st.free {
        if used[uint64(v)] {
            return errors.New("physical slot %d is both free and live", v)
        } else {
            used[uint64(v)] = true
        }
    }

    /* together they cover every physical slot of the frame */
    for v := first; v < st.total; v++ {
        if !used[uint64(v)] {
            return errors.New("physical slot %d is neither free nor live", v)
        }
    }
    if len(used) != int(st.total - first) {
        return errors.New("%d physical slots in use, expected %d", len(used), st.total - first)
    }
    return nil
}
