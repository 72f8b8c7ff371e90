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
    `fmt`
    `sort`

    `github.com/cloudwego/dfg/internal/dfg/bitvec`
    `github.com/cloudwego/dfg/internal/dfg/bytecode`
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

// _LivenessBlock is the backward dataflow state of one basic block. The
// uses of its k-th bytecode are info[index[2k]:index[2k+1]] and the defs are
// info[index[2k+1]:index[2k+2]].
type _LivenessBlock struct {
    bb      *BasicBlockInfo
    info    []uint32
    index   []int
    head    bitvec.Vector
    tail    bitvec.Vector
    andMask bitvec.Vector
    orMask  bitvec.Vector
    succs   []*_LivenessBlock
    hasPred bool
    changed int
    checked int
}

func newLivenessBlock(dec bytecode.Decoder, bb *BasicBlockInfo) *_LivenessBlock {
    nl := dec.NumLocals()
    self := &_LivenessBlock {
        bb    : bb,
        index : make([]int, 1, bb.NumBytecodes * 2 + 1),
        head  : bitvec.New(nl),
        tail  : bitvec.New(nl),
    }

    /* walk the block, tracking which locals hold a captured variable */
    captured := bb.CapturedAtHead.Copy()
    pos := bb.BytecodeOffset
    for i := 0; i < bb.NumBytecodes; i++ {
        if (i == bb.NumBytecodes - 1) != (pos == bb.TerminalOffset) {
            panic(fmt.Sprintf("cfa: %s does not end at its terminal", bb))
        }
        if cc, ok := dec.CreateClosureInfo(pos); ok {
            self.closure(dec, pos, cc, captured, pos == bb.TerminalOffset)
        } else if uc, ok := dec.UpvalueCloseInfo(pos); ok {
            self.uclose(dec, pos, uc, captured)
        } else {
            self.plain(dec, pos, captured)
        }
        pos = dec.NextPosition(pos)
    }

    /* the capture state must agree with the analysis */
    if !captured.Equal(bb.CapturedAtTail) {
        panic(fmt.Sprintf("cfa: captured locals at the tail of %s disagree: %v != %v", bb, captured, bb.CapturedAtTail))
    }

    /* head = tail & andMask | orMask */
    self.andMask = bitvec.New(nl)
    self.tail.SetFrom(0)
    self.headOf(self.andMask)
    self.orMask = bitvec.New(nl)
    self.tail.Reset()
    self.headOf(self.orMask)
    return self
}

func (self *_LivenessBlock) mark() {
    self.index = append(self.index, len(self.info))
}

// closure uses every parent local it captures, except a self-reference which
// is only read when it is a mutable one already holding a captured variable.
// It defs the locals it turns into captured variables, and its destination
// unless that is captured. A closure ending its block does not change the
// capture state, the same as in the capture analysis.
func (self *_LivenessBlock) closure(dec bytecode.Decoder, pos int, cc bytecode.CreateClosure, captured bitvec.Vector, terminal bool) {
    defs := dec.Writes(pos)
    if len(defs) != 1 {
        panic(fmt.Sprintf("cfa: closure at %#x must write exactly one local", pos))
    }
    if terminal {
        captured = captured.Copy()
    }

    /* uses */
    dst := defs[0]
    for _, uv := range cc.Upvalues {
        if uv.IsParentLocal {
            if uv.Slot != dst || (!uv.IsImmutable && captured.IsSet(int(uv.Slot))) {
                self.info = append(self.info, uv.Slot)
            }
        }
    }
    self.mark()

    /* defs */
    for _, uv := range cc.Upvalues {
        if uv.IsParentLocal && !uv.IsImmutable && !captured.IsSet(int(uv.Slot)) {
            self.info = append(self.info, uv.Slot)
            captured.Set(int(uv.Slot))
        }
    }
    if !captured.IsSet(int(dst)) {
        self.info = append(self.info, dst)
    }
    self.mark()
}

// uclose reads every captured variable it closes and writes its value back
// into the local.
func (self *_LivenessBlock) uclose(dec bytecode.Decoder, pos int, uc bytecode.UpvalueClose, captured bitvec.Vector) {
    nl := uint32(captured.Len())
    if uc.Start > nl {
        panic(fmt.Sprintf("cfa: upvalue close at %#x starts beyond the frame", pos))
    }

    /* uses */
    self.info = append(self.info, dec.Reads(pos)...)
    for i := uc.Start; i < nl; i++ {
        if captured.IsSet(int(i)) {
            self.info = append(self.info, i)
        }
    }
    self.mark()

    /* defs */
    for i := uc.Start; i < nl; i++ {
        if captured.IsSet(int(i)) {
            self.info = append(self.info, i)
            captured.Clear(int(i))
        }
    }
    self.mark()
}

// plain reads its inputs, and writes its outputs unless they hold a captured
// variable, in which case the write goes into the captured variable.
func (self *_LivenessBlock) plain(dec bytecode.Decoder, pos int, captured bitvec.Vector) {
    self.info = append(self.info, dec.Reads(pos)...)
    self.mark()
    for _, v := range dec.Writes(pos) {
        if !captured.IsSet(int(v)) {
            self.info = append(self.info, v)
        }
    }
    self.mark()
}

func (self *_LivenessBlock) uses(i int) []uint32 { return self.info[self.index[i * 2]:self.index[i * 2 + 1]] }
func (self *_LivenessBlock) defs(i int) []uint32 { return self.info[self.index[i * 2 + 1]:self.index[i * 2 + 2]] }

// headOf computes the head state implied by the current tail into out.
func (self *_LivenessBlock) headOf(out bitvec.Vector) {
    out.CopyFrom(self.tail)
    for i := self.bb.NumBytecodes - 1; i >= 0; i-- {
        for _, v := range self.defs(i) {
            out.Clear(int(v))
        }
        for _, v := range self.uses(i) {
            out.Set(int(v))
        }
    }
}

func (self *_LivenessBlock) fastHeadOf(out bitvec.Vector) {
    out.CopyFrom(self.tail)
    out.And(self.andMask)
    out.Or(self.orMask)
}

func (self *_LivenessBlock) fill(r *ir.BytecodeLiveness) {
    first := self.bb.BytecodeIndex
    for i := self.bb.NumBytecodes - 1; i >= 0; i-- {
        bc := uint32(first + i)
        after := r.Liveness(bc, ir.AfterUse)
        if i == self.bb.NumBytecodes - 1 {
            after.CopyFrom(self.tail)
        } else {
            after.CopyFrom(r.Liveness(bc + 1, ir.BeforeUse))
        }
        for _, v := range self.defs(i) {
            after.Clear(int(v))
        }
        before := r.Liveness(bc, ir.BeforeUse)
        before.CopyFrom(after)
        for _, v := range self.uses(i) {
            before.Set(int(v))
        }
    }
}

// update replaces dst with src, which must be a superset of it, and reports
// whether anything changed.
func update(dst bitvec.Vector, src bitvec.Vector) bool {
    if !dst.IsSubsetOf(src) {
        panic("cfa: liveness must grow monotonically")
    }
    if dst.Equal(src) {
        return false
    }
    dst.CopyFrom(src)
    return true
}

// ComputeBytecodeLiveness derives the per-bytecode liveness of every local
// from the control-flow and upvalue analysis of dec. A local holding a
// captured variable is live wherever the captured variable is read, and a
// write to it does not kill it. Bytecodes in no basic block are reported with
// every local dead.
func ComputeBytecodeLiveness(dec bytecode.Decoder, res *Result) *ir.BytecodeLiveness {
    nl := dec.NumLocals()
    bbs := make([]*_LivenessBlock, len(res.Blocks))
    lookup := make(map[*BasicBlockInfo]*_LivenessBlock, len(res.Blocks))

    /* visit the blocks backwards in bytecode order */
    for i, bb := range res.Blocks {
        bbs[i] = newLivenessBlock(dec, bb)
        lookup[bb] = bbs[i]
    }
    sort.Slice(bbs, func(i int, j int) bool { return bbs[i].bb.BytecodeIndex > bbs[j].bb.BytecodeIndex })

    /* link the successors */
    for _, lb := range bbs {
        for _, succ := range lb.bb.Successors {
            sb := lookup[succ]
            lb.succs = append(lb.succs, sb)
            sb.hasPred = true
        }
    }

    /* propagate to the fixed point, a block is only revisited when the
     * head of one of its successors changed since it was last checked */
    tmp := bitvec.New(nl)
    epoch := 1
    for first := true;; first = false {
        more := false
        for _, lb := range bbs {
            check := first
            for _, sb := range lb.succs {
                check = check || sb.changed > lb.checked
            }
            if !check {
                continue
            }

            /* tail is the union of the successor heads */
            epoch++
            lb.checked = epoch
            tmp.Reset()
            for _, sb := range lb.succs {
                tmp.Or(sb.head)
            }
            if !update(lb.tail, tmp) && !first {
                continue
            }

            /* recompute the head */
            lb.fastHeadOf(tmp)
            if update(lb.head, tmp) {
                epoch++
                lb.changed = epoch
                more = more || lb.hasPred
            }
        }
        if !more {
            break
        }
    }

    /* expand to every bytecode */
    ret := ir.NewBytecodeLiveness(countBytecodes(dec), nl)
    for _, lb := range bbs {
        lb.fill(ret)
    }
    return ret
}

func countBytecodes(dec bytecode.Decoder) (n int) {
    for pos := 0; pos < dec.CurLength(); pos = dec.NextPosition(pos) {
        n++
    }
    return
}
