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
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

type _Cleanup struct {
    g       *ir.Graph
    merged  map[*ir.BasicBlock]bool
    pending map[*ir.BasicBlock]bool
}

// replacement resolves the chain of bypassed blocks starting at bb. A loop
// made only of empty blocks resolves to the block where it is closed, which
// then stays as a trivial dead loop.
func (self *_Cleanup) replacement(bb *ir.BasicBlock) *ir.BasicBlock {
    if bb.Replacement == bb {
        return bb
    }
    if self.pending[bb] {
        bb.Replacement = bb
        return bb
    }
    self.pending[bb] = true
    ret := self.replacement(bb.Replacement)
    delete(self.pending, bb)
    bb.Replacement = ret
    return ret
}

// isTriviallyEmpty matches the single input-less Nop the frontend emits for
// a block it needs only as a jump pad.
func isTriviallyEmpty(bb *ir.BasicBlock) bool {
    return len(bb.Nodes) == 1 && bb.Nodes[0].Is(ir.KindNop) && bb.Nodes[0].NumInputs() == 0
}

func canMergeIntoPredecessor(bb *ir.BasicBlock) bool {
    if len(bb.Predecessors) != 1 {
        return false
    }
    pred := bb.Predecessors[0]
    if pred.NumSuccessors() == 0 {
        panic("ssa: predecessor without successors")
    }
    return pred.NumSuccessors() == 1
}

// TrivialCFGCleanup bypasses empty jump-pad blocks, removes unreachable
// blocks and merges every block into its predecessor when that edge is the
// only way in and out. Requires a pre-unification graph.
func TrivialCFGCleanup(g *ir.Graph) {
    if !g.IsPreUnificationForm() {
        panic("ssa: control flow cleanup requires a pre-unification graph")
    }
    self := &_Cleanup {
        g       : g,
        merged  : make(map[*ir.BasicBlock]bool),
        pending : make(map[*ir.BasicBlock]bool),
    }
    self.bypassEmptyBlocks()
    g.ComputeReachabilityAndPredecessors()
    g.RemoveTriviallyUnreachableBlocks()
    for _, bb := range g.Blocks {
        if bb.Replacement != bb {
            panic("ssa: bypassed block survived")
        }
        bb.AssertVirtualRegisterMappingConsistentAtTail()
    }
    self.mergeChains()
    if err := g.CheckCfgConsistent(); err != nil {
        panic("ssa: " + err.Error())
    }
}

func (self *_Cleanup) bypassEmptyBlocks() {
    found := false
    for _, bb := range self.g.Blocks {
        bb.Replacement = bb
    }

    /* the entry block is never bypassed, nor is a self loop */
    for _, bb := range self.g.Blocks[1:] {
        if isTriviallyEmpty(bb) {
            if bb.NumSuccessors() != 1 {
                panic("ssa: empty block must have exactly one successor")
            }
            if succ := bb.Successor(0); succ != bb {
                bb.Replacement = succ
                found = true
            }
        }
    }
    if !found {
        return
    }

    /* resolve every chain before any edge moves */
    for _, bb := range self.g.Blocks {
        self.replacement(bb)
    }

    /* redirect the edges of the surviving blocks */
    for _, bb := range self.g.Blocks {
        if bb.Replacement != bb {
            continue
        }
        for i := 0; i < bb.NumSuccessors(); i++ {
            succ := bb.Successor(i)
            if r := succ.Replacement; r != succ {
                bb.ReplaceSuccessor(i, r)
            }
        }
    }
}

func (self *_Cleanup) mergeChains() {
    for _, bb := range self.g.Blocks {
        if self.merged[bb] || canMergeIntoPredecessor(bb) {
            continue
        }

        /* bb starts a maximal chain, absorb it */
        for bb.NumSuccessors() == 1 {
            succ := bb.Successor(0)
            if self.merged[succ] {
                panic("ssa: merged block is still a successor")
            }
            if len(succ.Predecessors) != 1 {
                break
            }
            bb.MergeSuccessorBlock(succ)
            self.merged[succ] = true
        }
    }

    /* drop the absorbed blocks */
    if self.merged[self.g.EntryBlock()] {
        panic("ssa: entry block was merged away")
    }
    blocks := self.g.Blocks[:0]
    for _, bb := range self.g.Blocks {
        if !self.merged[bb] {
            blocks = append(blocks, bb)
        }
    }
    self.g.Blocks = blocks
}
