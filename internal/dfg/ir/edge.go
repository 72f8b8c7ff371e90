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

type _EdgeBits uint8

const (
    _EdgeStaticallyProven _EdgeBits = 1 << iota
    _EdgeProven
    _EdgeKill
    _EdgeGPR
)

// Value names one output of a node. Output 0 is the direct output; extra
// outputs are numbered from 1.
type Value struct {
    Node   NodeRef
    Output uint16
}

func (self Value) IsNil() bool {
    return self.Node == 0
}

// IsIdenticalAs reports whether both values name the same SSA value.
func (self Value) IsIdenticalAs(other Value) bool {
    return self == other
}

func (self Value) String() string {
    if self.Node == 0 {
        return "<nil>"
    } else if self.Output == 0 {
        return fmt.Sprintf("%%%d", self.Node)
    } else {
        return fmt.Sprintf("%%%d.%d", self.Node, self.Output)
    }
}

// Edge is a typed use of another node's output.
//
// The two proof bits are monotonic: once an edge is proven it stays proven.
type Edge struct {
    operand NodeRef
    output  uint16
    useKind UseKind
    bits    _EdgeBits
}

func (self *Edge) Operand() NodeRef      { return self.operand }
func (self *Edge) OutputOrdinal() uint16 { return self.output }
func (self *Edge) UseKind() UseKind      { return self.useKind }
func (self *Edge) Value() Value          { return Value { self.operand, self.output } }

func (self *Edge) SetOperand(v Value) {
    self.operand = v.Node
    self.output = v.Output
}

func (self *Edge) SetUseKind(uk UseKind) {
    self.useKind = uk
}

func (self *Edge) IsStaticallyKnownNoCheckNeeded() bool {
    return self.bits & _EdgeStaticallyProven != 0
}

func (self *Edge) IsProven() bool {
    return self.bits & _EdgeProven != 0
}

func (self *Edge) IsKill() bool {
    return self.bits & _EdgeKill != 0
}

func (self *Edge) ShouldUseGPR() bool {
    return self.bits & _EdgeGPR != 0
}

func (self *Edge) setBit(bit _EdgeBits, val bool) {
    if val {
        self.bits |= bit
    } else {
        self.bits &^= bit
    }
}

func (self *Edge) SetStaticallyProven(val bool) {
    if !val && self.IsStaticallyKnownNoCheckNeeded() {
        panic("ir: statically proven edge cannot become unproven")
    }
    self.setBit(_EdgeStaticallyProven, val)
}

func (self *Edge) SetProven(val bool) {
    if !val && self.IsProven() {
        panic("ir: proven edge cannot become unproven")
    }
    self.setBit(_EdgeProven, val)
}

func (self *Edge) SetKill(val bool)         { self.setBit(_EdgeKill, val) }
func (self *Edge) SetShouldUseGPR(val bool) { self.setBit(_EdgeGPR, val) }

// NeedsTypeCheck reports whether the use kind still has to be checked at
// runtime.
func (self *Edge) NeedsTypeCheck() bool {
    return self.useKind != UseKindUntyped && !self.IsStaticallyKnownNoCheckNeeded() && !self.IsProven()
}

func (self *Edge) String() string {
    var flags string
    if self.useKind != UseKindUntyped {
        switch {
            case self.IsStaticallyKnownNoCheckNeeded() : flags = "(" + self.useKind.String() + ", static)"
            case self.IsProven()                       : flags = "(" + self.useKind.String() + ", proven)"
            default                                    : flags = "(" + self.useKind.String() + ")"
        }
    }
    return self.Value().String() + flags
}
