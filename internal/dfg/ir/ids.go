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

// VirtualRegister is the DFG-private numbering of a bytecode-level slot. It
// is never interchangeable with InterpreterSlot.
type VirtualRegister struct {
    v uint32
}

func NewVirtualRegister(v uint32) VirtualRegister {
    return VirtualRegister { v }
}

func (self VirtualRegister) Value() uint32 {
    return self.v
}

func (self VirtualRegister) String() string {
    return fmt.Sprintf("vr%d", self.v)
}

// InterpreterSlot is an absolute slot ordinal on the interpreter stack, with
// slot 0 being the first slot of the root frame.
type InterpreterSlot struct {
    v uint32
}

func NewInterpreterSlot(v uint32) InterpreterSlot {
    return InterpreterSlot { v }
}

func (self InterpreterSlot) Value() uint32 {
    return self.v
}

func (self InterpreterSlot) String() string {
    return fmt.Sprintf("is%d", self.v)
}

// InterpreterFrameLocation is a location inside one interpreter frame:
// a bytecode local, a variadic argument, or one of the two header slots that
// are visible to the DFG (function object and number of variadic arguments).
type InterpreterFrameLocation struct {
    raw int32
}

const (
    _LocFunctionObject = -1
    _LocNumVarArgs     = -2
    _LocFirstVarArg    = -3
)

func LocalLocation(ord uint32) InterpreterFrameLocation {
    if ord > 0x7fffffff {
        panic("ir: local ordinal out of range")
    }
    return InterpreterFrameLocation { int32(ord) }
}

func VarArgLocation(ord uint32) InterpreterFrameLocation {
    if ord > 0x7ffffff0 {
        panic("ir: vararg ordinal out of range")
    }
    return InterpreterFrameLocation { _LocFirstVarArg - int32(ord) }
}

func FunctionObjectLocation() InterpreterFrameLocation {
    return InterpreterFrameLocation { _LocFunctionObject }
}

func NumVarArgsLocation() InterpreterFrameLocation {
    return InterpreterFrameLocation { _LocNumVarArgs }
}

func (self InterpreterFrameLocation) IsLocal() bool             { return self.raw >= 0 }
func (self InterpreterFrameLocation) IsVarArg() bool            { return self.raw <= _LocFirstVarArg }
func (self InterpreterFrameLocation) IsFunctionObjectLoc() bool { return self.raw == _LocFunctionObject }
func (self InterpreterFrameLocation) IsNumVarArgsLoc() bool     { return self.raw == _LocNumVarArgs }
func (self InterpreterFrameLocation) Raw() int32                { return self.raw }

func (self InterpreterFrameLocation) LocalOrd() uint32 {
    if !self.IsLocal() {
        panic("ir: location is not a local")
    }
    return uint32(self.raw)
}

func (self InterpreterFrameLocation) VarArgOrd() uint32 {
    if !self.IsVarArg() {
        panic("ir: location is not a variadic argument")
    }
    return uint32(_LocFirstVarArg - self.raw)
}

func (self InterpreterFrameLocation) String() string {
    switch {
        case self.IsLocal()             : return fmt.Sprintf("loc%d", self.raw)
        case self.IsVarArg()            : return fmt.Sprintf("va%d", self.VarArgOrd())
        case self.IsFunctionObjectLoc() : return "fnobj"
        default                         : return "numva"
    }
}

type _MappingKind uint8

const (
    _MappingUninitialized _MappingKind = iota
    _MappingDead
    _MappingVReg
    _MappingUnmapped
)

// VirtualRegisterMappingInfo describes what an interpreter slot holds at a
// program point: nothing live, the value of a virtual register, or a
// statically-known constant that has no virtual register at all.
type VirtualRegisterMappingInfo struct {
    kind _MappingKind
    vreg VirtualRegister
    node NodeRef
}

func DeadMapping() VirtualRegisterMappingInfo {
    return VirtualRegisterMappingInfo { kind: _MappingDead }
}

func VRegMapping(vr VirtualRegister) VirtualRegisterMappingInfo {
    return VirtualRegisterMappingInfo { kind: _MappingVReg, vreg: vr }
}

// UnmappedMapping marks a slot that always holds the value of the constant
// node n (a Constant or UnboxedConstant).
func UnmappedMapping(n NodeRef) VirtualRegisterMappingInfo {
    if n == 0 {
        panic("ir: unmapped slot requires a constant node")
    }
    return VirtualRegisterMappingInfo { kind: _MappingUnmapped, node: n }
}

func (self VirtualRegisterMappingInfo) IsInitialized() bool {
    return self.kind != _MappingUninitialized
}

func (self VirtualRegisterMappingInfo) IsLive() bool {
    if !self.IsInitialized() {
        panic("ir: reading an uninitialized mapping")
    }
    return self.kind != _MappingDead
}

func (self VirtualRegisterMappingInfo) IsUnmapped() bool {
    if !self.IsLive() {
        panic("ir: dead slot has no mapping")
    }
    return self.kind == _MappingUnmapped
}

func (self VirtualRegisterMappingInfo) VirtualRegister() VirtualRegister {
    if self.kind != _MappingVReg {
        panic("ir: slot is not mapped to a virtual register")
    }
    return self.vreg
}

func (self VirtualRegisterMappingInfo) ConstantNode() NodeRef {
    if self.kind != _MappingUnmapped {
        panic("ir: slot does not hold a constant")
    }
    return self.node
}

func (self VirtualRegisterMappingInfo) String() string {
    switch self.kind {
        case _MappingUninitialized : return "uninit"
        case _MappingDead          : return "dead"
        case _MappingVReg          : return self.vreg.String()
        default                    : return fmt.Sprintf("const(%%%d)", self.node)
    }
}

// VirtualRegisterAllocator hands out virtual registers, reusing freed ones
// in LIFO order before growing the high-water mark.
type VirtualRegisterAllocator struct {
    free []uint32
    next uint32
}

func (self *VirtualRegisterAllocator) Allocate() VirtualRegister {
    if n := len(self.free); n != 0 {
        v := self.free[n - 1]
        self.free = self.free[:n - 1]
        return VirtualRegister { v }
    }
    self.next++
    return VirtualRegister { self.next - 1 }
}

func (self *VirtualRegisterAllocator) Deallocate(vr VirtualRegister) {
    if vr.v >= self.next {
        panic("ir: deallocating a virtual register that was never allocated")
    }
    for _, v := range self.free {
        if v == vr.v {
            panic("ir: double free of " + vr.String())
        }
    }
    self.free = append(self.free, vr.v)
}

// MaxUsed returns the number of distinct virtual registers ever handed out.
func (self *VirtualRegisterAllocator) MaxUsed() uint32 {
    return self.next
}

func (self *VirtualRegisterAllocator) CopyTo(other *VirtualRegisterAllocator) {
    other.free = append(other.free[:0], self.free...)
    other.next = self.next
}

func (self *VirtualRegisterAllocator) FreeList() []uint32 {
    return self.free
}
