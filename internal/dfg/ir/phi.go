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

// PhiRef is an index into the Phi arena of a Graph. Zero is nil.
type PhiRef uint32

// PhiOrNode is either a Phi, a Node, or nil.
type PhiOrNode struct {
    phi  PhiRef
    node NodeRef
}

func FromPhi(p PhiRef) PhiOrNode   { return PhiOrNode { phi: p } }
func FromNode(n NodeRef) PhiOrNode { return PhiOrNode { node: n } }

func (self PhiOrNode) IsNil() bool { return self.phi == 0 && self.node == 0 }

func (self PhiOrNode) IsPhi() bool {
    if self.IsNil() {
        panic("ir: nil PhiOrNode")
    }
    return self.phi != 0
}

func (self PhiOrNode) IsNode() bool {
    return !self.IsPhi()
}

func (self PhiOrNode) AsPhi() PhiRef {
    if !self.IsPhi() {
        panic("ir: PhiOrNode is not a Phi")
    }
    return self.phi
}

func (self PhiOrNode) AsNode() NodeRef {
    if self.IsPhi() {
        panic("ir: PhiOrNode is not a Node")
    }
    return self.node
}

func (self PhiOrNode) String() string {
    switch {
        case self.IsNil() : return "<nil>"
        case self.IsPhi() : return fmt.Sprintf("phi%d", self.phi)
        default           : return fmt.Sprintf("%%%d", self.node)
    }
}

// PhiPayload is what a Phi stands for: PhiOrigin before unification,
// PhiLogicalVar afterwards.
type PhiPayload interface {
    isPhiPayload()
}

// PhiOrigin names a GetLocal or SetLocal accessing the same local, used to
// unify the Phi with the accesses that reach it.
type PhiOrigin struct {
    Node NodeRef
}

type PhiLogicalVar struct {
    Var *LogicalVariableInfo
}

func (PhiOrigin) isPhiPayload()     {}
func (PhiLogicalVar) isPhiPayload() {}

// Phi records the value of one local at the start of one basic block. It is
// auxiliary information and only exists in block-local SSA form.
type Phi struct {
    ref            PhiRef
    block          *BasicBlock
    localOrd       uint32
    canSeeSetLocal bool
    maybeUndef     bool
    incoming       []PhiOrNode
    payload        PhiPayload
}

func (self *Phi) Ref() PhiRef              { return self.ref }
func (self *Phi) BasicBlock() *BasicBlock  { return self.block }
func (self *Phi) LocalOrd() uint32         { return self.localOrd }
func (self *Phi) NumIncomingValues() int   { return len(self.incoming) }
func (self *Phi) Payload() PhiPayload      { return self.payload }

// IncomingValue is the value flowing in from predecessor i: a Phi, a
// SetLocal, or UndefValue.
func (self *Phi) IncomingValue(i int) PhiOrNode {
    return self.incoming[i]
}

func (self *Phi) SetIncomingValue(i int, v PhiOrNode) {
    self.incoming[i] = v
}

// OriginNodeForUnification is only meaningful before unification.
func (self *Phi) OriginNodeForUnification() NodeRef {
    if p, ok := self.payload.(PhiOrigin); !ok {
        panic("ir: Phi no longer carries its origin node")
    } else {
        return p.Node
    }
}

func (self *Phi) LogicalVariable() *LogicalVariableInfo {
    if p, ok := self.payload.(PhiLogicalVar); !ok {
        panic("ir: Phi is not unified yet")
    } else {
        return p.Var
    }
}

func (self *Phi) SetLogicalVariable(v *LogicalVariableInfo) {
    if v == nil {
        panic("ir: nil logical variable")
    }
    self.payload = PhiLogicalVar { v }
}

// IsTriviallyUndefValue reports that no SetLocal can ever flow into this Phi.
func (self *Phi) IsTriviallyUndefValue() bool { return !self.canSeeSetLocal }
func (self *Phi) SetNotTriviallyUndefValue()  { self.canSeeSetLocal = true }

// MaybeUndefValue reports that UndefValue may flow into this Phi along
// some path.
func (self *Phi) MaybeUndefValue() bool { return self.maybeUndef }
func (self *Phi) SetMaybeUndefValue()   { self.maybeUndef = true }
