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
    `fmt`

    `github.com/oleiade/lane`
)

// ValidationError describes the first malformed construct Validate found.
type ValidationError struct {
    Block  *BasicBlock
    Node   *Node
    Reason string
}

func (self ValidationError) Error() string {
    switch {
        case self.Node  != nil : return fmt.Sprintf("invalid IR at %s in %s: %s", self.Node, self.Block, self.Reason)
        case self.Block != nil : return fmt.Sprintf("invalid IR at %s: %s", self.Block, self.Reason)
        default                : return "invalid IR: " + self.Reason
    }
}

type ValidateOptions struct {
    AllowUnreachableBlocks bool
}

func invalidBlock(bb *BasicBlock, reason string, args ...interface{}) error {
    return ValidationError { Block: bb, Reason: fmt.Sprintf(reason, args...) }
}

func invalidNode(bb *BasicBlock, n *Node, reason string, args ...interface{}) error {
    return ValidationError { Block: bb, Node: n, Reason: fmt.Sprintf(reason, args...) }
}

// Validate checks the structural well-formedness of the graph: block
// terminators and successor counts, block-local use of SSA values, variadic
// result chains and, unless allowed, reachability of every block.
func (self *Graph) Validate(opts ValidateOptions) error {
    if len(self.Blocks) == 0 {
        return ValidationError { Reason: "missing entry block" }
    }

    seen := make(map[*Node]bool)
    blocks := make(map[*BasicBlock]bool, len(self.Blocks))

    /* per-block checks */
    for _, bb := range self.Blocks {
        if err := self.validateBlock(bb, seen); err != nil {
            return err
        }
        if blocks[bb] {
            return invalidBlock(bb, "block listed multiple times")
        }
        blocks[bb] = true
    }

    /* successors must be real, non-entry blocks */
    for _, bb := range self.Blocks {
        for i := 0; i < bb.NumSuccessors(); i++ {
            if succ := bb.successors[i]; !blocks[succ] {
                return invalidBlock(bb, "invalid successor %d", i)
            } else if succ == self.Blocks[0] {
                return invalidBlock(bb, "branches to the entry block")
            }
        }
    }

    /* reachability */
    if !opts.AllowUnreachableBlocks {
        q := lane.NewQueue()
        delete(blocks, self.Blocks[0])
        for q.Enqueue(self.Blocks[0]); !q.Empty(); {
            bb := q.Dequeue().(*BasicBlock)
            for i := 0; i < bb.NumSuccessors(); i++ {
                if succ := bb.successors[i]; blocks[succ] {
                    delete(blocks, succ)
                    q.Enqueue(succ)
                }
            }
        }
        if len(blocks) != 0 {
            return ValidationError { Reason: "graph contains unreachable blocks" }
        }
    }
    return nil
}

func (self *Graph) validateBlock(bb *BasicBlock, seen map[*Node]bool) error {
    if len(bb.Nodes) == 0 {
        return invalidBlock(bb, "empty basic block")
    }
    if bb.numSucc < 0 || bb.numSucc > 2 {
        return invalidBlock(bb, "invalid number of successors")
    }

    /* the terminator must be in the block */
    term := bb.Terminator
    if term == nil {
        return invalidBlock(bb, "missing terminator")
    }
    found := false
    for _, n := range bb.Nodes {
        found = found || n == term
    }
    if !found {
        return invalidBlock(bb, "terminator is not in the block")
    }

    /* every other node is straight-line */
    for _, n := range bb.Nodes {
        if n != term && n.NumControlFlowSuccessors() != 1 {
            return invalidNode(bb, n, "terminal node at a non-terminal position")
        }
    }
    if term.kind == KindReturn && term.NumControlFlowSuccessors() != 0 {
        return invalidNode(bb, term, "Return must have no successors")
    }
    if term.NumControlFlowSuccessors() != bb.numSucc {
        return invalidNode(bb, term, "wrong number of successor blocks")
    }
    if bb.numSucc <= 1 && term != bb.Nodes[len(bb.Nodes) - 1] {
        return invalidNode(bb, term, "terminator must be the last node")
    }

    var vrGen *Node
    genSeen := false
    local := make(map[*Node]bool, len(bb.Nodes))

    /* nodes */
    for _, n := range bb.Nodes {
        if n.IsConstantLike() || n.kind == KindPhi {
            return invalidNode(bb, n, "constant-like node inside a block")
        }
        if seen[n] {
            return invalidNode(bb, n, "node appears multiple times")
        }
        seen[n] = true
        if n.MayOsrExit() && !n.flags.IsExitOK() {
            return invalidNode(bb, n, "may exit where OSR exit is not allowed")
        }

        /* inputs are constant-like or defined earlier in the block */
        for i := 0; i < n.NumInputs(); i++ {
            e := n.InputEdge(i)
            op := self.Node(e.operand)
            if !op.IsConstantLike() && !local[op] {
                return invalidNode(bb, n, "input %d is not defined earlier in the block", i)
            }
            if !op.IsOutputOrdValid(e.output) {
                return invalidNode(bb, n, "input %d refers to an invalid output", i)
            }
        }

        /* variadic results */
        if n.flags.AccessesVR() {
            if vrGen == nil {
                if genSeen {
                    return invalidNode(bb, n, "variadic results already clobbered")
                }
                if n.kind != KindPrependVariadicRes || n.NumInputs() != 0 || n.vrInput != 0 {
                    return invalidNode(bb, n, "invalid variadic result reference")
                }
            } else if n.vrInput != vrGen.ref {
                return invalidNode(bb, n, "variadic results do not come from the latest producer")
            }
        }
        if n.flags.ClobbersVR() {
            vrGen = nil
        }
        if n.flags.GeneratesVR() {
            vrGen, genSeen = n, true
        }
        local[n] = true
    }
    return nil
}
