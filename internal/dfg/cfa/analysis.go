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
    `math`
    `sort`

    `github.com/oleiade/lane`
    `github.com/cloudwego/dfg/internal/dfg/bitvec`
    `github.com/cloudwego/dfg/internal/dfg/bytecode`
)

// BasicBlockInfo is one basic block of the bytecode stream.
type BasicBlockInfo struct {
    Ord            int
    BytecodeOffset int
    BytecodeIndex  int
    TerminalOffset int
    NumBytecodes   int

    // IsTerminalImplicitTrivialBranch is set when the terminal instruction
    // neither branches nor is a barrier, so control falls into the next
    // block.
    IsTerminalImplicitTrivialBranch bool

    // Successors, fallthrough first.
    Successors []*BasicBlockInfo

    // CapturedAtHead, CapturedAtTail and CapturedInBB track, per local, whether
    // the local may be captured by a live closure at block entry, at block
    // exit, and by a closure created inside the block.
    CapturedAtHead bitvec.Vector
    CapturedAtTail bitvec.Vector
    CapturedInBB   bitvec.Vector

    ucloseLimit int
    inQueue     bool
}

func (self *BasicBlockInfo) end(dec bytecode.Decoder) int {
    return dec.NextPosition(self.TerminalOffset)
}

func (self *BasicBlockInfo) String() string {
    return fmt.Sprintf("bb%d@%#x", self.Ord, self.BytecodeOffset)
}

// Result lists every reachable basic block in discovery order. Blocks[0] is
// the function entry.
type Result struct {
    Blocks []*BasicBlockInfo
}

type _Analyzer struct {
    dec    bytecode.Decoder
    starts []int
    index  []*BasicBlockInfo
    result []*BasicBlockInfo
}

// Analyze splits the stream into basic blocks and computes which locals may
// be captured by a live closure at each block boundary.
func Analyze(dec bytecode.Decoder) *Result {
    self := &_Analyzer { dec: dec }
    self.collectStarts()
    self.index = make([]*BasicBlockInfo, len(self.starts))
    self.traverse(0)
    self.checkRanges()
    self.computeCaptures()
    self.checkCaptures()
    return &Result { Blocks: self.result }
}

func (self *_Analyzer) collectStarts() {
    n := self.dec.CurLength()
    ret := []int { 0 }

    /* every barrier or branch ends a block */
    for pos := 0; pos < n; pos = self.dec.NextPosition(pos) {
        next := self.dec.NextPosition(pos)
        barrier := self.dec.IsBarrier(pos)
        branch := self.dec.HasBranchOperand(pos)
        if barrier || branch {
            ret = append(ret, next)
        }
        if branch {
            ret = append(ret, self.dec.BranchTarget(pos))
        }
    }

    /* sort and dedup, the stream end must be present as a sentinel */
    ret = append(ret, n)
    sort.Ints(ret)
    j := 0
    for i := 1; i < len(ret); i++ {
        if ret[i] != ret[j] {
            j++
            ret[j] = ret[i]
        }
    }
    ret = ret[:j + 1]

    /* sanity checks */
    if len(ret) < 2 || ret[0] != 0 || ret[len(ret) - 1] != n {
        panic("cfa: invalid basic block boundaries")
    }
    self.starts = ret
}

func (self *_Analyzer) traverse(pos int) *BasicBlockInfo {
    idx := sort.SearchInts(self.starts, pos)
    if idx >= len(self.starts) - 1 || self.starts[idx] != pos {
        panic(fmt.Sprintf("cfa: branch to %#x which is not a block boundary", pos))
    }

    /* already materialized */
    if bb := self.index[idx]; bb != nil {
        return bb
    }

    /* find the terminal instruction */
    end := self.starts[idx + 1]
    cur := pos
    for self.dec.NextPosition(cur) != end {
        if self.dec.NextPosition(cur) > end {
            panic(fmt.Sprintf("cfa: instruction at %#x crosses the block end %#x", cur, end))
        }
        if self.dec.IsBarrier(cur) || self.dec.HasBranchOperand(cur) {
            panic(fmt.Sprintf("cfa: control flow instruction at %#x is not a block terminal", cur))
        }
        cur = self.dec.NextPosition(cur)
    }

    /* materialize the block before recursing, loops will hit the index */
    nl := self.dec.NumLocals()
    bb := &BasicBlockInfo {
        Ord                             : len(self.result),
        BytecodeOffset                  : pos,
        BytecodeIndex                   : self.dec.BytecodeIndex(pos),
        TerminalOffset                  : cur,
        NumBytecodes                    : self.dec.BytecodeIndex(cur) - self.dec.BytecodeIndex(pos) + 1,
        IsTerminalImplicitTrivialBranch : !self.dec.HasBranchOperand(cur) && !self.dec.IsBarrier(cur),
        CapturedAtHead                  : bitvec.New(nl),
        CapturedAtTail                  : bitvec.New(nl),
        CapturedInBB                    : bitvec.New(nl),
    }

    /* add to the result */
    self.index[idx] = bb
    self.result = append(self.result, bb)

    /* fallthrough goes first */
    if !self.dec.IsBarrier(cur) {
        bb.Successors = append(bb.Successors, self.traverse(end))
    }
    if self.dec.HasBranchOperand(cur) {
        bb.Successors = append(bb.Successors, self.traverse(self.dec.BranchTarget(cur)))
    }
    return bb
}

func (self *_Analyzer) checkRanges() {
    bbs := make([]*BasicBlockInfo, len(self.result))
    copy(bbs, self.result)
    sort.Slice(bbs, func(i int, j int) bool { return bbs[i].BytecodeOffset < bbs[j].BytecodeOffset })

    /* blocks must not overlap */
    if bbs[0].BytecodeOffset != 0 || self.result[0].BytecodeOffset != 0 {
        panic("cfa: entry block does not start at offset 0")
    }
    for i := 1; i < len(bbs); i++ {
        if bbs[i - 1].end(self.dec) > bbs[i].BytecodeOffset {
            panic(fmt.Sprintf("cfa: %s overlaps %s", bbs[i - 1], bbs[i]))
        }
    }
}

func (self *_Analyzer) computeCaptures() {
    nl := self.dec.NumLocals()
    q := lane.NewQueue()

    /* compute the generated and the killed set of every block */
    for _, bb := range self.result {
        bb.ucloseLimit = math.MaxInt32
        if uc, ok := self.dec.UpvalueCloseInfo(bb.TerminalOffset); ok {
            bb.ucloseLimit = int(uc.Start)
        }

        /* only closures created before the terminal count, the terminal may not create one */
        for pos := bb.BytecodeOffset; pos < bb.TerminalOffset; pos = self.dec.NextPosition(pos) {
            if cc, ok := self.dec.CreateClosureInfo(pos); ok {
                for _, uv := range cc.Upvalues {
                    if uv.IsImmutable || !uv.IsParentLocal {
                        continue
                    }
                    if int(uv.Slot) >= nl {
                        panic(fmt.Sprintf("cfa: closure at %#x captures local %d out of range", pos, uv.Slot))
                    }
                    bb.CapturedInBB.Set(int(uv.Slot))
                }
            }
        }

        /* only blocks that capture anything seed the worklist */
        if !bb.CapturedInBB.IsEmpty() {
            bb.inQueue = true
            q.Enqueue(bb)
        }
    }

    /* forward may-analysis */
    tmp := bitvec.New(nl)
    for !q.Empty() {
        bb := q.Dequeue().(*BasicBlockInfo)
        bb.inQueue = false

        /* tail = (head | inBB), clipped by the upvalue close */
        tmp.CopyFrom(bb.CapturedAtHead)
        tmp.Or(bb.CapturedInBB)
        tmp.ClearFrom(bb.ucloseLimit)

        /* the transfer function is monotone, the tail only grows */
        if tmp.Equal(bb.CapturedAtTail) {
            continue
        }
        if !bb.CapturedAtTail.IsSubsetOf(tmp) {
            panic("cfa: captured set shrinks at " + bb.String())
        }

        /* propagate to successors */
        bb.CapturedAtTail.CopyFrom(tmp)
        for _, succ := range bb.Successors {
            if succ.CapturedAtHead.Or(bb.CapturedAtTail) && !succ.inQueue {
                succ.inQueue = true
                q.Enqueue(succ)
            }
        }
    }
}

func (self *_Analyzer) checkCaptures() {
    nl := self.dec.NumLocals()
    preds := make([][]*BasicBlockInfo, len(self.result))

    /* build the predecessor lists */
    for _, bb := range self.result {
        for _, succ := range bb.Successors {
            preds[succ.Ord] = append(preds[succ.Ord], bb)
        }
    }

    /* check every block */
    for _, bb := range self.result {
        if len(bb.Successors) == 0 && !bb.CapturedAtTail.IsEmpty() {
            panic("cfa: captured locals at the tail of exit block " + bb.String())
        }
        for i := 0; i < nl; i++ {
            inHead := bb.CapturedAtHead.IsSet(i)
            inTail := bb.CapturedAtTail.IsSet(i)
            want := i < bb.ucloseLimit && (inHead || bb.CapturedInBB.IsSet(i))

            /* the tail is exactly the transfer function */
            if inTail != want {
                panic(fmt.Sprintf("cfa: inconsistent tail for local %d at %s", i, bb))
            }

            /* tail(pred) => head(succ) */
            if inTail {
                for _, succ := range bb.Successors {
                    if !succ.CapturedAtHead.IsSet(i) {
                        panic(fmt.Sprintf("cfa: local %d captured at the tail of %s but not at the head of %s", i, bb, succ))
                    }
                }
            }

            /* every head bit comes from a predecessor */
            if inHead && !hasPredTail(preds[bb.Ord], i) {
                panic(fmt.Sprintf("cfa: local %d captured at the head of %s without a source", i, bb))
            }
        }
    }
}

func hasPredTail(preds []*BasicBlockInfo, i int) bool {
    for _, p := range preds {
        if p.CapturedAtTail.IsSet(i) {
            return true
        }
    }
    return false
}
