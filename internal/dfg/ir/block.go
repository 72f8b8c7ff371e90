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
)

const _NoInPlaceCallRcFrame = ^uint32(0)

// BasicBlock is a straight-line sequence of nodes with up to two successors.
// With two successors the fallthrough successor comes first.
type BasicBlock struct {
    g            *Graph
    Id           int
    Nodes        []*Node
    successors   [2]*BasicBlock
    predOrd      [2]uint32
    numSucc      int
    Predecessors []*BasicBlock
    Terminator   *Node
    Replacement  *BasicBlock
    reachable    bool

    // LocalInfoAtHead describes the first thing that happens to each local in
    // this block, LocalInfoAtTail the last. Only valid in block-local SSA form.
    LocalInfoAtHead []PhiOrNode
    LocalInfoAtTail []PhiOrNode

    // BcForInterpreterStateAtBBStart is the bytecode whose BeforeUse state
    // the interpreter stack matches when the block starts. It is invalid for
    // the root entry block.
    BcForInterpreterStateAtBBStart CodeOrigin

    // InPlaceCallRcFrameLocalOrd: every local at or above this ordinal is
    // dead at the head of this block, whatever bytecode liveness says.
    InPlaceCallRcFrameLocalOrd uint32
}

func (self *BasicBlock) Graph() *Graph { return self.g }

func (self *BasicBlock) NumSuccessors() int {
    if self.numSucc < 0 {
        panic(fmt.Sprintf("ir: successors of bb%d are not set", self.Id))
    }
    return self.numSucc
}

func (self *BasicBlock) Successor(i int) *BasicBlock {
    if i >= self.NumSuccessors() {
        panic("ir: successor out of range")
    }
    return self.successors[i]
}

// PredOrdForSuccessor is the index of this block in the predecessor list of
// successor i.
func (self *BasicBlock) PredOrdForSuccessor(i int) uint32 {
    if i >= self.NumSuccessors() {
        panic("ir: successor out of range")
    }
    return self.predOrd[i]
}

// SetSuccessors sets the successors, the fallthrough one first. The
// predecessor lists are rebuilt by ComputeReachabilityAndPredecessors.
func (self *BasicBlock) SetSuccessors(succs ...*BasicBlock) {
    if len(succs) > 2 {
        panic("ir: a basic block has at most two successors")
    }
    self.numSucc = len(succs)
    self.successors = [2]*BasicBlock{}
    copy(self.successors[:], succs)
    self.g.InvalidateCfg()
}

// ReplaceSuccessor redirects successor i to bb.
func (self *BasicBlock) ReplaceSuccessor(i int, bb *BasicBlock) {
    if i >= self.NumSuccessors() {
        panic("ir: successor out of range")
    }
    self.successors[i] = bb
    self.g.InvalidateCfg()
}

func (self *BasicBlock) IsReachable() bool {
    return self.reachable
}

func (self *BasicBlock) GetTerminator() *Node {
    if self.Terminator == nil {
        panic(fmt.Sprintf("ir: bb%d has no terminator", self.Id))
    }
    return self.Terminator
}

func (self *BasicBlock) String() string {
    return fmt.Sprintf("bb%d", self.Id)
}

/** Bytecode liveness at block boundaries **/

func (self *BasicBlock) isBytecodeLocalLiveAtHead(local uint32) bool {
    frame := self.BcForInterpreterStateAtBBStart.Frame()
    if local >= frame.NumBytecodeLocals() {
        panic("ir: bytecode local out of range")
    }
    if local >= self.InPlaceCallRcFrameLocalOrd {
        return false
    }
    bc := self.BcForInterpreterStateAtBBStart.BytecodeIndex()
    return frame.BytecodeLiveness().IsLocalLive(bc, BeforeUse, local)
}

func (self *BasicBlock) isSetLocalLocationLiveAtHead(frame *InlinedCallFrame, loc InterpreterFrameLocation) bool {
    bbFrame := self.BcForInterpreterStateAtBBStart.Frame()

    /* same frame: header and vararg slots are always live */
    if frame == bbFrame {
        if !loc.IsLocal() {
            return true
        } else {
            return self.isBytecodeLocalLiveAtHead(loc.LocalOrd())
        }
    }

    /* the frame written must be an ancestor on the current inlining stack */
    var callee *InlinedCallFrame
    for cur := bbFrame; !cur.IsRootFrame(); {
        parent := cur.ParentFrame()
        if parent == frame {
            callee = cur
            break
        }
        cur = parent
    }
    if callee == nil {
        return false
    }

    /* slots that became part of the callee frame are dead */
    slot := frame.InterpreterSlotForLocation(loc)
    if slot.Value() >= callee.InterpreterSlotForFrameStart().Value() {
        return false
    }
    return bbFrame.IsInterpreterSlotBeforeFrameBaseLive(slot)
}

// IsSetLocalBytecodeLiveAtTail reports whether a SetLocal to the location is
// bytecode-live at the end of this block, so it must be kept even if DFG-dead.
func (self *BasicBlock) IsSetLocalBytecodeLiveAtTail(frame *InlinedCallFrame, loc InterpreterFrameLocation) bool {
    for i := 0; i < self.NumSuccessors(); i++ {
        if self.successors[i].isSetLocalLocationLiveAtHead(frame, loc) {
            return true
        }
    }
    return false
}

func (self *BasicBlock) IsSetLocalNodeBytecodeLiveAtTail(n *Node) bool {
    n.assertKind(KindSetLocal)
    return self.IsSetLocalBytecodeLiveAtTail(n.LocalFrame(), n.LocalLocation())
}

func (self *BasicBlock) GetVirtualRegisterForInterpreterSlotAtHead(slot InterpreterSlot) VirtualRegisterMappingInfo {
    frame := self.BcForInterpreterStateAtBBStart.Frame()
    base := frame.InterpreterSlotForStackFrameBase().Value()
    if slot.Value() < base {
        return frame.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(slot)
    }
    if local := slot.Value() - base; local >= frame.NumBytecodeLocals() {
        return DeadMapping()
    } else if !self.isBytecodeLocalLiveAtHead(local) {
        return DeadMapping()
    } else {
        return VRegMapping(frame.RegisterForLocalOrd(local))
    }
}

// GetVirtualRegisterForInterpreterSlotAtTail merges the head mappings of all
// successors and panics if two live mappings disagree.
func (self *BasicBlock) GetVirtualRegisterForInterpreterSlotAtTail(slot InterpreterSlot) VirtualRegisterMappingInfo {
    if self.NumSuccessors() == 0 {
        return DeadMapping()
    }
    ret := self.successors[0].GetVirtualRegisterForInterpreterSlotAtHead(slot)
    for i := 1; i < self.numSucc; i++ {
        next := self.successors[i].GetVirtualRegisterForInterpreterSlotAtHead(slot)
        if !ret.IsLive() {
            ret = next
            continue
        }
        if !next.IsLive() {
            continue
        }
        if ret.IsUnmapped() != next.IsUnmapped() || (!ret.IsUnmapped() && ret.VirtualRegister() != next.VirtualRegister()) {
            panic("ir: successors disagree on " + slot.String())
        }
    }
    return ret
}

// AssertVirtualRegisterMappingConsistentAtTail checks every slot that any
// successor may observe.
func (self *BasicBlock) AssertVirtualRegisterMappingConsistentAtTail() {
    end := uint32(0)
    if !self.BcForInterpreterStateAtBBStart.IsInvalid() {
        end = self.BcForInterpreterStateAtBBStart.Frame().InterpreterSlotForFrameEnd().Value()
    }
    for i := 0; i < self.NumSuccessors(); i++ {
        if v := self.successors[i].BcForInterpreterStateAtBBStart.Frame().InterpreterSlotForFrameEnd().Value(); v > end {
            end = v
        }
    }
    for s := uint32(0); s < end; s++ {
        _ = self.GetVirtualRegisterForInterpreterSlotAtTail(InterpreterSlot { s })
    }
}

/** Mutation **/

// RemoveEmptyNopNodes removes Nops without inputs. A block never becomes
// empty: the last removed Nop is kept if nothing else remains.
func (self *BasicBlock) RemoveEmptyNopNodes() {
    if len(self.Nodes) == 0 {
        panic("ir: empty basic block")
    }
    var removed *Node
    nodes := self.Nodes[:0]

    /* compact in place */
    for _, n := range self.Nodes {
        if n.kind == KindNop && n.NumInputs() == 0 {
            removed = n
        } else {
            nodes = append(nodes, n)
        }
    }

    /* keep one Nop so the block is not empty */
    if len(nodes) == 0 {
        nodes = append(nodes, removed)
    }

    /* the old terminator might have been removed */
    self.Nodes = nodes
    if self.NumSuccessors() == 1 {
        self.Terminator = nodes[len(nodes) - 1]
    } else if self.GetTerminator().kind == KindNop {
        panic("ir: branching block terminated by a Nop")
    }
}

func (self *BasicBlock) isInheritVariadicResNode(n *Node) bool {
    return n.kind == KindPrependVariadicRes && n.vrInput == 0
}

// MergeSuccessorBlock appends the single successor bb, which must have this
// block as its single predecessor. Successor and predecessor edges are
// updated; head and tail local info become stale.
func (self *BasicBlock) MergeSuccessorBlock(bb *BasicBlock) {
    if bb == self || self.NumSuccessors() != 1 || self.successors[0] != bb {
        panic("ir: can only merge the unique successor")
    }
    if len(bb.Predecessors) != 1 || bb.Predecessors[0] != self {
        panic("ir: merged block must have a unique predecessor")
    }

    var inherit *Node
    var lastProducer *Node
    seenInherit := false
    numOld := len(self.Nodes)

    /* append the nodes, rechaining the variadic results inherited by bb */
    for _, n := range bb.Nodes {
        if self.isInheritVariadicResNode(n) {
            if n.NumInputs() != 0 || seenInherit {
                panic("ir: malformed variadic result inheritance")
            }
            seenInherit = true
            for i := numOld - 1; i >= 0; i-- {
                if self.Nodes[i].flags.GeneratesVR() {
                    lastProducer = self.Nodes[i]
                    break
                }
            }
            if lastProducer != nil {
                inherit = n
                continue
            }
        } else if n.flags.AccessesVR() {
            if n.vrInput == 0 {
                panic("ir: variadic result consumer without producer")
            }
            if inherit != nil && n.vrInput == inherit.ref {
                n.SetVariadicResultInputNode(lastProducer.ref)
            }
        }
        self.Nodes = append(self.Nodes, n)
    }

    /* take over the successors of bb */
    self.numSucc = bb.numSucc
    for i := 0; i < self.numSucc; i++ {
        succ := bb.successors[i]
        if succ == bb {
            panic("ir: merged block branches to itself")
        }
        self.successors[i] = succ
        self.predOrd[i] = bb.predOrd[i]
        if p := succ.Predecessors[self.predOrd[i]]; p != bb && p != self {
            panic("ir: inconsistent predecessor list")
        }
        succ.Predecessors[self.predOrd[i]] = self
    }
    self.Terminator = bb.Terminator

    /* detach bb */
    bb.numSucc = 0
    bb.Predecessors = nil
}
