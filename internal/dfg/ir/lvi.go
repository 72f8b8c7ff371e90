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

// TypeMask is a set of runtime types, one bit per type.
type TypeMask uint64

const (
    TypeMaskTop TypeMask = ^TypeMask(0)
)

// LogicalVariableInfo is the canonical identity of one source local after
// all aliasing GetLocal / SetLocal accesses have been unified. It is created
// once per union-find root and never changes afterwards, except that its
// proven type may only be refined.
type LogicalVariableInfo struct {
    vreg   VirtualRegister
    islot  InterpreterSlot
    ord    uint32
    hasOrd bool
    proven TypeMask
}

func newLogicalVariableInfo(vreg VirtualRegister, islot InterpreterSlot) *LogicalVariableInfo {
    return &LogicalVariableInfo {
        vreg   : vreg,
        islot  : islot,
        proven : TypeMaskTop,
    }
}

func (self *LogicalVariableInfo) VirtualRegister() VirtualRegister { return self.vreg }
func (self *LogicalVariableInfo) InterpreterSlot() InterpreterSlot { return self.islot }
func (self *LogicalVariableInfo) ProvenType() TypeMask             { return self.proven }
func (self *LogicalVariableInfo) HasOrdinal() bool                 { return self.hasOrd }

func (self *LogicalVariableInfo) Ordinal() uint32 {
    if !self.hasOrd {
        panic("ir: logical variable is not registered")
    }
    return self.ord
}

func (self *LogicalVariableInfo) setOrdinal(ord uint32) {
    if self.hasOrd {
        panic("ir: logical variable registered twice")
    }
    self.ord, self.hasOrd = ord, true
}

// RefineProvenType intersects the proven type with mask.
func (self *LogicalVariableInfo) RefineProvenType(mask TypeMask) {
    self.proven &= mask
}

func (self *LogicalVariableInfo) String() string {
    if self.hasOrd {
        return fmt.Sprintf("lv%d<%s, %s>", self.ord, self.vreg, self.islot)
    } else {
        return fmt.Sprintf("lv?<%s, %s>", self.vreg, self.islot)
    }
}
