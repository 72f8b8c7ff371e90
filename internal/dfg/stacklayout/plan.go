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
    `fmt`
    `math`

    `github.com/cloudwego/dfg/internal/dfg/ir`
    `tlog.app/go/tlog`
)

// MaxSlots is the hard ceiling on both the constant table and the number of
// physical slots, since OSR records encode either of them as int16.
const MaxSlots = 32768

// Limits bounds the size of a plan. Both limits may only be lowered below
// MaxSlots.
type Limits struct {
    MaxConstants     int
    MaxPhysicalSlots int
}

func DefaultLimits() Limits {
    return Limits {
        MaxConstants     : MaxSlots,
        MaxPhysicalSlots : MaxSlots,
    }
}

// LimitError is raised (as a panic) when a function needs more constants or
// physical slots than a plan can describe.
type LimitError struct {
    What  string
    Count int
    Limit int
}

func (self *LimitError) Error() string {
    return fmt.Sprintf("LimitError: too many %s (%d >= %d)", self.What, self.Count, self.Limit)
}

func fatal(what string, count int, limit int) {
    tlog.Printw("dfg: compilation aborted", "what", what, "count", count, "limit", limit)
    panic(&LimitError { What: what, Count: count, Limit: limit })
}

// Result is the stack layout of one compilation.
type Result struct {
    ConstantTable         []uint64
    NumBoxedConstants     uint32
    NumTotalPhysicalSlots uint32
    OsrInfoOffsets        []uint32
    OsrInfoData           []byte
    frames                []_FrameState
}

type _FrameState struct {
    free  []uint32
    total uint32
}

// OsrInfo returns the OSR record of the frame with ordinal ord.
func (self *Result) OsrInfo(ord int) OsrInfo {
    return OsrInfoAt(self.OsrInfoData, self.OsrInfoOffsets[ord])
}

// ConstantTableImage lays the constant table out the way Reconstruct reads
// it: ordinal -k is at index len-k.
func (self *Result) ConstantTableImage() []uint64 {
    n := len(self.ConstantTable)
    ret := make([]uint64, n)
    for i, v := range self.ConstantTable {
        ret[n - 1 - i] = v
    }
    return ret
}

func (self *Result) NumFrames() int {
    return len(self.OsrInfoOffsets)
}

/** Per-frame slot state **/

const (
    _SlotUnused   int32 = 0
    _SlotNeeded   int32 = 1
    _SlotConstant int32 = math.MinInt32
)

// _Frame tracks every interpreter slot of one frame:
//
//     [ varargs ] [ header ] [ locals ]
//
// base is the index of local 0. A slot is unused (no SetLocal writes it),
// needed, a physical slot (> 1), or holds a constant. Once the frame is
// planned constant slots hold their (negative) constant table ordinal.
type _Frame struct {
    frame  *ir.InlinedCallFrame
    parent *_Frame
    slots  []int32
    consts map[int]*ir.Node
    base   uint32
    start  uint32
    free   []uint32
    total  uint32
}

func newFrame(g *ir.Graph, fr *ir.InlinedCallFrame, reserve func(*ir.Node)) *_Frame {
    ret := &_Frame {
        frame  : fr,
        consts : make(map[int]*ir.Node),
    }

    /* the root frame starts at slot 0 and has no header */
    if !fr.IsRootFrame() {
        ret.base = fr.MaxVarArgsAllowed() + ir.NumSlotsForStackFrameHeader
        ret.start = fr.InterpreterSlotForFrameStart().Value()
    }

    /* allocate the slot states */
    ret.slots = make([]int32, ret.base + fr.NumBytecodeLocals())
    if fr.IsRootFrame() {
        return ret
    }

    /* header slots may hold statically-known constants */
    for ord := uint32(0); ord < ir.NumSlotsForStackFrameHeader; ord++ {
        idx := int(ret.base - ir.NumSlotsForStackFrameHeader + ord)
        vrm := fr.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(fr.InterpreterSlotForStackFrameHeader(ord))

        /* every header slot is live */
        if !vrm.IsLive() {
            panic(fmt.Sprintf("stacklayout: header slot %d of %s is dead", ord, fr))
        }

        /* reserve a constant table entry for constants */
        if vrm.IsUnmapped() {
            nd := g.Node(vrm.ConstantNode())
            reserve(nd)
            ret.slots[idx] = _SlotConstant
            ret.consts[idx] = nd
        }
    }

    /* variadic arguments always live in virtual registers */
    for ord := uint32(0); ord < fr.MaxVarArgsAllowed(); ord++ {
        vrm := fr.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(fr.InterpreterSlotForVariadicArgument(ord))
        if !vrm.IsLive() || vrm.IsUnmapped() {
            panic(fmt.Sprintf("stacklayout: variadic argument %d of %s is not in a virtual register", ord, fr))
        }
    }
    return ret
}

func (self *_Frame) index(loc ir.InterpreterFrameLocation) int {
    slot := self.frame.InterpreterSlotForLocation(loc).Value()
    if slot < self.start || slot >= self.start + uint32(len(self.slots)) {
        panic(fmt.Sprintf("stacklayout: %s is outside of %s", loc, self.frame))
    }
    return int(slot - self.start)
}

func (self *_Frame) isLiveAndMapped(idx int) bool {
    if self.slots[idx] == _SlotNeeded {
        panic("stacklayout: frame is not planned yet")
    }
    return self.slots[idx] > 0
}

// vreg is the virtual register held by slot idx. Slots below the frame base
// are described by the before-base mapping, locals by the frame itself.
func (self *_Frame) vreg(idx int) uint32 {
    if uint32(idx) >= self.base {
        return self.frame.RegisterForLocalOrd(uint32(idx) - self.base).Value()
    }
    vrm := self.frame.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(ir.NewInterpreterSlot(self.start + uint32(idx)))
    if !vrm.IsLive() || vrm.IsUnmapped() {
        panic(fmt.Sprintf("stacklayout: slot %d of %s is not in a virtual register", idx, self.frame))
    }
    return vrm.VirtualRegister().Value()
}

/** Virtual-register aware free list **/

// _VRegFreeList remembers which physical slot each freed virtual register
// occupied, so that a callee can reuse the slot of the same register.
type _VRegFreeList struct {
    slot  map[uint32]uint32
    order []uint32
}

func (self *_VRegFreeList) available(vr uint32) bool {
    _, ok := self.slot[vr]
    return ok
}

func (self *_VRegFreeList) add(vr uint32, slot uint32) {
    if slot < 2 || self.available(vr) {
        panic(fmt.Sprintf("stacklayout: cannot free physical slot %d of vr%d", slot, vr))
    }
    self.slot[vr] = slot
    self.order = append(self.order, vr)
}

func (self *_VRegFreeList) consume(vr uint32) uint32 {
    ret, ok := self.slot[vr]
    if !ok {
        panic(fmt.Sprintf("stacklayout: vr%d has no free physical slot", vr))
    }
    delete(self.slot, vr)
    return ret
}

// drain appends every slot that was not consumed to free, in the order they
// were added, and leaves the list empty.
func (self *_VRegFreeList) drain(free []uint32) []uint32 {
    for _, vr := range self.order {
        if slot, ok := self.slot[vr]; ok {
            free = append(free, slot)
            delete(self.slot, vr)
        }
    }
    self.order = self.order[:0]
    return free
}

/** Planner **/

type _LocalOp struct {
    node  *ir.Node
    frame *_Frame
    idx   int
}

type _Planner struct {
    g       *ir.Graph
    limits  Limits
    table   []uint64
    unboxed []uint64
    fixups  []*ir.Node
    frames  []*_Frame
    ops     []_LocalOp
    vfl     _VRegFreeList
    res     *Result
}

// Plan assigns a physical slot to every interpreter slot that a SetLocal
// writes, and a constant table ordinal to every constant used in the graph
// or held by a frame header. GetLocal and SetLocal nodes are stamped with
// their physical slot, constants with their ordinal. The graph must be in
// block-local SSA form and must not have been planned before.
//
// Plan panics with *LimitError when either limit is reached.
func Plan(g *ir.Graph, limits Limits) *Result {
    if !g.IsBlockLocalSSAForm() {
        panic("stacklayout: graph is not in block-local SSA form")
    }
    if limits.MaxConstants <= 0 || limits.MaxConstants > MaxSlots {
        panic("stacklayout: invalid constant limit")
    }
    if limits.MaxPhysicalSlots <= 0 || limits.MaxPhysicalSlots > MaxSlots {
        panic("stacklayout: invalid physical slot limit")
    }
    pp := &_Planner {
        g      : g,
        limits : limits,
        vfl    : _VRegFreeList { slot: make(map[uint32]uint32) },
        res    : new(Result),
    }
    pp.run()
    return pp.res
}

func (self *_Planner) run() {
    self.g.ForEachConstantLikeNode(func(nd *ir.Node) {
        if nd.IsOrdInConstantTableAssigned() {
            panic("stacklayout: graph is already planned")
        }
    })

    /* build the frame states, parents first */
    for i := 0; i < self.g.NumInlinedCallFrames(); i++ {
        fr := self.g.InlinedCallFrame(i)
        fs := newFrame(self.g, fr, self.reserve)

        /* link to the parent frame state */
        if fr.Ordinal() != uint32(i) {
            panic("stacklayout: frame ordinals are out of order")
        } else if !fr.IsRootFrame() {
            fs.parent = self.frames[fr.ParentFrame().Ordinal()]
        }

        /* add to frame list */
        self.frames = append(self.frames, fs)
    }

    /* collect constants and local accesses */
    self.collect()
    self.finalizeConstants()
    self.layoutRecords()

    /* assign physical slots, one frame at a time */
    for _, fs := range self.frames {
        self.assign(fs)
    }

    /* enforce the physical slot limit */
    if n := int(self.res.NumTotalPhysicalSlots); n >= self.limits.MaxPhysicalSlots {
        fatal("physical slots", n, self.limits.MaxPhysicalSlots)
    }

    /* write the records */
    for i, fs := range self.frames {
        self.write(i, fs)
    }

    /* stamp the local accesses */
    for _, op := range self.ops {
        op.node.AssignPhysicalSlot(uint32(op.frame.slots[op.idx]))
    }

    /* print the layout summary when asked to */
    if tlog.If("dfg_stack") {
        tlog.Printw("stack layout", "frames", len(self.frames), "constants", len(self.res.ConstantTable), "boxed", self.res.NumBoxedConstants, "slots", self.res.NumTotalPhysicalSlots)
    }
}

func (self *_Planner) reserve(nd *ir.Node) {
    if nd.IsOrdInConstantTableAssigned() {
        return
    }
    switch {
        case nd.Is(ir.KindConstant): {
            self.table = append(self.table, nd.ConstantValue())
            nd.AssignConstantTableOrd(-int64(len(self.table)))
        }
        case nd.Is(ir.KindUnboxedConstant): {
            self.unboxed = append(self.unboxed, nd.ConstantValue())
            self.fixups = append(self.fixups, nd)
            nd.AssignConstantTableOrd(-int64(len(self.unboxed)))
        }
        default: {
            panic(fmt.Sprintf("stacklayout: %s is not a constant", nd))
        }
    }
}

func (self *_Planner) collect() {
    for _, bb := range self.g.Blocks {
        for _, nd := range bb.Nodes {
            nd.ForEachInputEdge(func(e *ir.Edge) {
                if op := self.g.Node(e.Operand()); op.Is(ir.KindConstant) || op.Is(ir.KindUnboxedConstant) {
                    self.reserve(op)
                }
            })

            /* only local accesses need a slot */
            if !nd.Is(ir.KindGetLocal) && !nd.Is(ir.KindSetLocal) {
                continue
            }

            /* a node is planned only once */
            if nd.HasPhysicalSlot() {
                panic(fmt.Sprintf("stacklayout: %s already has a physical slot", nd))
            }

            /* locate the slot state */
            fs := self.frames[nd.LocalFrame().Ordinal()]
            idx := fs.index(nd.LocalLocation())

            /* SetLocal marks the slot as needed */
            if v := fs.slots[idx]; v != _SlotUnused && v != _SlotNeeded {
                panic(fmt.Sprintf("stacklayout: %s accesses a constant slot", nd))
            } else if nd.Is(ir.KindSetLocal) {
                fs.slots[idx] = _SlotNeeded
            }

            /* add to the stamping list */
            self.ops = append(self.ops, _LocalOp {
                node  : nd,
                frame : fs,
                idx   : idx,
            })
        }
    }

    /* a GetLocal that sees no SetLocal should have become UndefValue */
    for _, op := range self.ops {
        if op.frame.slots[op.idx] != _SlotNeeded {
            panic(fmt.Sprintf("stacklayout: %s reads a slot that is never written", op.node))
        }
    }
}

// finalizeConstants places the unboxed constants after the boxed ones,
// shifting their ordinals accordingly.
func (self *_Planner) finalizeConstants() {
    nb := len(self.table)
    self.table = append(self.table, self.unboxed...)

    /* enforce the constant limit */
    if n := len(self.table); n >= self.limits.MaxConstants {
        fatal("constants", n, self.limits.MaxConstants)
    }

    /* shift the unboxed ordinals */
    for _, nd := range self.fixups {
        nd.ModifyConstantTableOrd(nd.ConstantTableOrd() - int64(nb))
    }

    /* save the result */
    self.unboxed = nil
    self.fixups = nil
    self.res.ConstantTable = self.table
    self.res.NumBoxedConstants = uint32(nb)
}

func (self *_Planner) layoutRecords() {
    off := uint32(0)
    self.res.OsrInfoOffsets = make([]uint32, len(self.frames))

    /* records are packed in frame order */
    for i, fs := range self.frames {
        self.res.OsrInfoOffsets[i] = off
        off += uint32(OsrInfoAllocationLength(len(fs.slots)))
    }

    /* allocate the data block */
    self.res.OsrInfoData = make([]byte, off)
}

func (self *_Planner) assign(fs *_Frame) {
    if fs.parent == nil {
        fs.free = nil
        fs.total = self.g.FirstLocalPhysicalSlot()
    } else {
        self.inherit(fs)
    }

    /* mint or pop a physical slot for every needed slot */
    for idx, v := range fs.slots {
        if v != _SlotNeeded {
            continue
        }
        if n := len(fs.free); n == 0 {
            fs.slots[idx] = int32(fs.total)
            fs.total++
        } else {
            fs.slots[idx] = int32(fs.free[n - 1])
            fs.free = fs.free[:n - 1]
        }
    }

    /* resolve the constant slots */
    for idx, nd := range fs.consts {
        fs.slots[idx] = int32(nd.ConstantTableOrd())
    }

    /* update the high-water mark */
    if fs.total > self.res.NumTotalPhysicalSlots {
        self.res.NumTotalPhysicalSlots = fs.total
    }

    /* save the state for validation */
    self.res.frames = append(self.res.frames, _FrameState {
        free  : append([]uint32(nil), fs.free...),
        total : fs.total,
    })
}

// inherit builds the free list of a callee frame. Physical slots of the
// caller that are dead at the call, or that the callee frame overlaps, are
// released; a callee slot reuses the physical slot of the caller slot in the
// same virtual register when possible.
func (self *_Planner) inherit(fs *_Frame) {
    pfs := fs.parent
    pfr := pfs.frame
    cut := int(fs.start) - int(pfs.start)

    /* the callee frame starts inside the caller frame */
    if cut < 0 || cut > len(pfs.slots) {
        panic(fmt.Sprintf("stacklayout: %s does not start inside %s", fs.frame, pfr))
    }

    /* caller slots below the callee frame are released when dead */
    for idx := 0; idx < cut; idx++ {
        if pfs.isLiveAndMapped(idx) {
            slot := ir.NewInterpreterSlot(pfs.start + uint32(idx))
            if !fs.frame.IsInterpreterSlotBeforeFrameBaseLive(slot) {
                self.vfl.add(pfs.vreg(idx), uint32(pfs.slots[idx]))
            }
        }
    }

    /* caller slots overlapped by the callee frame are always released */
    for idx := cut; idx < len(pfs.slots); idx++ {
        if pfs.isLiveAndMapped(idx) {
            self.vfl.add(pfs.vreg(idx), uint32(pfs.slots[idx]))
        }
    }

    /* reuse the slot of the same virtual register */
    for idx, v := range fs.slots {
        if v == _SlotNeeded {
            if vr := fs.vreg(idx); self.vfl.available(vr) {
                fs.slots[idx] = int32(self.vfl.consume(vr))
            }
        }
    }

    /* everything else joins the inherited free list */
    fs.total = pfs.total
    fs.free = self.vfl.drain(append([]uint32(nil), pfs.free...))
}

func (self *_Planner) write(ord int, fs *_Frame) {
    diff := int32(0)
    out := _OsrWriter { buf: self.res.OsrInfoData, off: int(self.res.OsrInfoOffsets[ord]) }

    /* parent records always precede their children */
    if fs.parent != nil {
        pord := fs.frame.ParentFrame().Ordinal()
        diff = int32(self.res.OsrInfoOffsets[pord]) - int32(self.res.OsrInfoOffsets[ord])
    }

    /* header and slot values */
    out.header(diff, fs.start, fs.start + fs.base, uint32(len(fs.slots)))
    for idx, v := range fs.slots {
        out.value(idx, v)
    }
}
