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

    `github.com/cloudwego/dfg/internal/dfg/bitvec`
)

// NumSlotsForStackFrameHeader is the number of interpreter slots between the
// variadic arguments of a frame and its local 0: the function object, the
// number of variadic arguments, the return address and the caller frame.
const NumSlotsForStackFrameHeader = 4

const (
    HeaderSlotFunctionObject = 0
    HeaderSlotNumVarArgs     = 1
)

const _NoVReg = ^uint32(0)

// CodeBlock is the compile-time view of one guest function.
type CodeBlock struct {
    Name                 string
    NumLocals            uint32
    HasVariadicArguments bool
}

// LivenessPoint selects the liveness state around one bytecode.
type LivenessPoint uint8

const (
    // BeforeUse is the state before the bytecode reads its inputs.
    BeforeUse LivenessPoint = iota

    // AfterUse is the state after the inputs are read, before any output is written.
    AfterUse
)

// BytecodeLiveness answers "is bytecode local L live at bytecode B".
type BytecodeLiveness struct {
    before []bitvec.Vector
    after  []bitvec.Vector
}

func NewBytecodeLiveness(numBytecodes int, numLocals int) *BytecodeLiveness {
    ret := &BytecodeLiveness {
        before : make([]bitvec.Vector, numBytecodes),
        after  : make([]bitvec.Vector, numBytecodes),
    }
    for i := 0; i < numBytecodes; i++ {
        ret.before[i] = bitvec.New(numLocals)
        ret.after[i] = bitvec.New(numLocals)
    }
    return ret
}

func (self *BytecodeLiveness) NumBytecodes() int {
    return len(self.before)
}

func (self *BytecodeLiveness) Liveness(bcIndex uint32, point LivenessPoint) bitvec.Vector {
    if point == BeforeUse {
        return self.before[bcIndex]
    } else {
        return self.after[bcIndex]
    }
}

func (self *BytecodeLiveness) SetLive(bcIndex uint32, point LivenessPoint, local uint32, live bool) {
    if v := self.Liveness(bcIndex, point); live {
        v.Set(int(local))
    } else {
        v.Clear(int(local))
    }
}

func (self *BytecodeLiveness) IsLocalLive(bcIndex uint32, point LivenessPoint, local uint32) bool {
    return self.Liveness(bcIndex, point).IsSet(int(local))
}

// CodeOrigin is a bytecode position inside one inlined call frame. The zero
// value is invalid.
type CodeOrigin struct {
    frame   *InlinedCallFrame
    bcIndex uint32
}

func NewCodeOrigin(frame *InlinedCallFrame, bcIndex uint32) CodeOrigin {
    if frame == nil {
        panic("ir: code origin requires a frame")
    }
    return CodeOrigin { frame, bcIndex }
}

func (self CodeOrigin) IsInvalid() bool {
    return self.frame == nil
}

func (self CodeOrigin) Frame() *InlinedCallFrame {
    if self.frame == nil {
        panic("ir: invalid code origin")
    }
    return self.frame
}

func (self CodeOrigin) BytecodeIndex() uint32 {
    if self.frame == nil {
        panic("ir: invalid code origin")
    }
    return self.bcIndex
}

func (self CodeOrigin) String() string {
    if self.frame == nil {
        return "<invalid>"
    }
    if self.frame.hasOrd {
        return fmt.Sprintf("f%d:bc%d", self.frame.ord, self.bcIndex)
    }
    return fmt.Sprintf("f?:bc%d", self.bcIndex)
}

// OsrExitDestination is where execution continues in the lower tier when a
// node exits. A branch destination means the exit continues at the branch
// target of the bytecode at the origin.
type OsrExitDestination struct {
    isBranch bool
    origin   CodeOrigin
}

func NewOsrExitDestination(isBranchDest bool, origin CodeOrigin) OsrExitDestination {
    return OsrExitDestination { isBranchDest, origin }
}

func (self OsrExitDestination) IsInvalid() bool    { return self.origin.IsInvalid() }
func (self OsrExitDestination) IsBranchDest() bool { return self.isBranch }

func (self OsrExitDestination) NormalDestination() CodeOrigin {
    if self.isBranch {
        panic("ir: OSR exit destination is a branch destination")
    }
    return self.origin
}

func (self OsrExitDestination) BranchBytecodeOrigin() CodeOrigin {
    if !self.isBranch {
        panic("ir: OSR exit destination is not a branch destination")
    }
    return self.origin
}

// InlineSite describes how a callee frame is attached to its caller.
type InlineSite struct {
    Caller           CodeOrigin
    IsDirectCall     bool
    IsTailCall       bool
    CallSiteOrd      uint8
    StaticNumVarArgs bool
    MaxVarArgs       uint32
    Base             InterpreterSlot
}

// InlinedCallFrame is one (possibly inlined) call activation. Frames form a
// tree rooted at the function being compiled.
type InlinedCallFrame struct {
    cb              *CodeBlock
    caller          CodeOrigin
    parentForReturn *InlinedCallFrame
    isDirectCall    bool
    isTailCall      bool
    staticNumVA     bool
    callSiteOrd     uint8
    ord             uint32
    hasOrd          bool
    maxVarArgs      uint32
    base            uint32
    localVR         []uint32
    varArgVR        []uint32
    fnObjVR         uint32
    numVarArgsVR    uint32
    liveness        *BytecodeLiveness
    beforeBase      []VirtualRegisterMappingInfo
}

// NewRootFrame creates the frame of the function being compiled. Local i is
// given virtual register i, so vra must be fresh.
func NewRootFrame(cb *CodeBlock, vra *VirtualRegisterAllocator) *InlinedCallFrame {
    ret := &InlinedCallFrame {
        cb           : cb,
        callSiteOrd  : 0xff,
        localVR      : make([]uint32, cb.NumLocals),
        fnObjVR      : _NoVReg,
        numVarArgsVR : _NoVReg,
    }
    for i := range ret.localVR {
        if ret.localVR[i] = vra.Allocate().Value(); ret.localVR[i] != uint32(i) {
            panic("ir: root frame requires a fresh virtual register allocator")
        }
    }
    return ret
}

func NewInlinedFrame(cb *CodeBlock, site InlineSite) *InlinedCallFrame {
    if site.Caller.IsInvalid() {
        panic("ir: inlined frame requires a caller")
    }
    if !cb.HasVariadicArguments && (!site.StaticNumVarArgs || site.MaxVarArgs != 0) {
        panic("ir: function without variadic arguments cannot take any")
    }
    if site.Base.Value() < NumSlotsForStackFrameHeader + site.MaxVarArgs {
        panic("ir: frame base leaves no room for the header and variadic arguments")
    }
    ret := &InlinedCallFrame {
        cb           : cb,
        caller       : site.Caller,
        isDirectCall : site.IsDirectCall,
        isTailCall   : site.IsTailCall,
        staticNumVA  : site.StaticNumVarArgs,
        callSiteOrd  : site.CallSiteOrd,
        maxVarArgs   : site.MaxVarArgs,
        base         : site.Base.Value(),
        localVR      : make([]uint32, cb.NumLocals),
        varArgVR     : make([]uint32, site.MaxVarArgs),
        fnObjVR      : _NoVReg,
        numVarArgsVR : _NoVReg,
        beforeBase   : make([]VirtualRegisterMappingInfo, site.Base.Value()),
    }
    for i := range ret.localVR {
        ret.localVR[i] = _NoVReg
    }
    for i := range ret.varArgVR {
        ret.varArgVR[i] = _NoVReg
    }
    ret.parentForReturn = ret.findParentFrameForReturn()
    return ret
}

func (self *InlinedCallFrame) findParentFrameForReturn() *InlinedCallFrame {
    for fr := self; !fr.IsRootFrame(); {
        parent := fr.caller.Frame()
        if !fr.isTailCall {
            return parent
        }
        fr = parent
    }
    return nil
}

func (self *InlinedCallFrame) IsRootFrame() bool      { return self.caller.IsInvalid() }
func (self *InlinedCallFrame) CodeBlock() *CodeBlock  { return self.cb }
func (self *InlinedCallFrame) NumBytecodeLocals() uint32 { return uint32(len(self.localVR)) }

func (self *InlinedCallFrame) assertNotRoot() {
    if self.IsRootFrame() {
        panic("ir: operation is not valid on the root frame")
    }
}

func (self *InlinedCallFrame) CallerCodeOrigin() CodeOrigin {
    self.assertNotRoot()
    return self.caller
}

func (self *InlinedCallFrame) ParentFrame() *InlinedCallFrame {
    return self.CallerCodeOrigin().Frame()
}

// ParentFrameForReturn is the frame that a return from this frame lands in,
// skipping tail-calling frames. It is nil if every frame up to the root was
// entered through a tail call.
func (self *InlinedCallFrame) ParentFrameForReturn() *InlinedCallFrame {
    return self.parentForReturn
}

func (self *InlinedCallFrame) IsTailCallAllTheWayDown() bool {
    return self.parentForReturn == nil
}

func (self *InlinedCallFrame) IsDirectCall() bool     { self.assertNotRoot(); return self.isDirectCall }
func (self *InlinedCallFrame) IsTailCall() bool       { self.assertNotRoot(); return self.isTailCall }
func (self *InlinedCallFrame) StaticallyKnowsNumVarArgs() bool { self.assertNotRoot(); return self.staticNumVA }
func (self *InlinedCallFrame) MaxVarArgsAllowed() uint32 { self.assertNotRoot(); return self.maxVarArgs }
func (self *InlinedCallFrame) CallerBytecodeCallSiteOrdinal() uint8 { self.assertNotRoot(); return self.callSiteOrd }

func (self *InlinedCallFrame) NumVarArgs() uint32 {
    if !self.StaticallyKnowsNumVarArgs() {
        panic("ir: number of variadic arguments is not static")
    }
    return self.maxVarArgs
}

func (self *InlinedCallFrame) HasOrdinal() bool {
    return self.hasOrd
}

func (self *InlinedCallFrame) Ordinal() uint32 {
    if !self.hasOrd {
        panic("ir: inlined call frame is not registered")
    }
    return self.ord
}

func (self *InlinedCallFrame) setOrdinal(ord uint32) {
    if self.hasOrd {
        panic("ir: inlined call frame registered twice")
    }
    if !self.IsRootFrame() && ord <= self.ParentFrame().Ordinal() {
        panic("ir: inlined call frame must be registered after its parent")
    }
    self.ord, self.hasOrd = ord, true
}

/** Slot arithmetic **/

func (self *InlinedCallFrame) InterpreterSlotForLocalOrd(ord uint32) InterpreterSlot {
    return InterpreterSlot { self.base + ord }
}

func (self *InlinedCallFrame) InterpreterSlotForStackFrameHeader(ord uint32) InterpreterSlot {
    self.assertNotRoot()
    if ord >= NumSlotsForStackFrameHeader {
        panic("ir: header slot out of range")
    }
    return InterpreterSlot { self.base - NumSlotsForStackFrameHeader + ord }
}

func (self *InlinedCallFrame) InterpreterSlotForFrameStart() InterpreterSlot {
    self.assertNotRoot()
    return InterpreterSlot { self.base - NumSlotsForStackFrameHeader - self.maxVarArgs }
}

func (self *InlinedCallFrame) InterpreterSlotForFrameEnd() InterpreterSlot {
    return InterpreterSlot { self.base + self.NumBytecodeLocals() }
}

func (self *InlinedCallFrame) InterpreterSlotForStackFrameBase() InterpreterSlot {
    return InterpreterSlot { self.base }
}

func (self *InlinedCallFrame) InterpreterSlotForVariadicArgument(ord uint32) InterpreterSlot {
    self.assertNotRoot()
    if ord >= self.maxVarArgs {
        panic("ir: variadic argument out of range")
    }
    return InterpreterSlot { self.base - NumSlotsForStackFrameHeader - self.maxVarArgs + ord }
}

func (self *InlinedCallFrame) InterpreterSlotForLocation(loc InterpreterFrameLocation) InterpreterSlot {
    switch {
        case loc.IsLocal()             : return self.InterpreterSlotForLocalOrd(loc.LocalOrd())
        case loc.IsVarArg()            : return self.InterpreterSlotForVariadicArgument(loc.VarArgOrd())
        case loc.IsFunctionObjectLoc() : return self.InterpreterSlotForStackFrameHeader(HeaderSlotFunctionObject)
        default                        : return self.InterpreterSlotForStackFrameHeader(HeaderSlotNumVarArgs)
    }
}

/** Virtual register maps **/

func (self *InlinedCallFrame) RegisterForLocalOrd(ord uint32) VirtualRegister {
    if ord >= self.NumBytecodeLocals() || self.localVR[ord] == _NoVReg {
        panic(fmt.Sprintf("ir: local %d has no virtual register", ord))
    }
    return VirtualRegister { self.localVR[ord] }
}

func (self *InlinedCallFrame) SetRegisterForLocalOrd(ord uint32, vr VirtualRegister) {
    if self.localVR[ord] != _NoVReg {
        panic(fmt.Sprintf("ir: local %d already has a virtual register", ord))
    }
    self.localVR[ord] = vr.v
}

func (self *InlinedCallFrame) RegisterForVarArgOrd(ord uint32) VirtualRegister {
    self.assertNotRoot()
    if ord >= self.maxVarArgs || self.varArgVR[ord] == _NoVReg {
        panic(fmt.Sprintf("ir: variadic argument %d has no virtual register", ord))
    }
    return VirtualRegister { self.varArgVR[ord] }
}

func (self *InlinedCallFrame) SetRegisterForVarArgOrd(ord uint32, vr VirtualRegister) {
    if self.varArgVR[ord] != _NoVReg {
        panic(fmt.Sprintf("ir: variadic argument %d already has a virtual register", ord))
    }
    self.varArgVR[ord] = vr.v
}

func (self *InlinedCallFrame) SetClosureCallFunctionObjectRegister(vr VirtualRegister) {
    if self.IsDirectCall() || self.fnObjVR != _NoVReg {
        panic("ir: function object register can only be set once, on a closure call")
    }
    self.fnObjVR = vr.v
}

func (self *InlinedCallFrame) ClosureCallFunctionObjectRegister() VirtualRegister {
    if self.IsDirectCall() || self.fnObjVR == _NoVReg {
        panic("ir: frame has no function object register")
    }
    return VirtualRegister { self.fnObjVR }
}

func (self *InlinedCallFrame) SetNumVarArgsRegister(vr VirtualRegister) {
    if self.StaticallyKnowsNumVarArgs() || self.numVarArgsVR != _NoVReg {
        panic("ir: num-varargs register can only be set once, on a dynamic frame")
    }
    self.numVarArgsVR = vr.v
}

func (self *InlinedCallFrame) NumVarArgsRegister() VirtualRegister {
    if self.StaticallyKnowsNumVarArgs() || self.numVarArgsVR == _NoVReg {
        panic("ir: frame has no num-varargs register")
    }
    return VirtualRegister { self.numVarArgsVR }
}

func (self *InlinedCallFrame) VirtualRegisterForLocation(loc InterpreterFrameLocation) VirtualRegister {
    switch {
        case loc.IsLocal()             : return self.RegisterForLocalOrd(loc.LocalOrd())
        case loc.IsVarArg()            : return self.RegisterForVarArgOrd(loc.VarArgOrd())
        case loc.IsFunctionObjectLoc() : return self.ClosureCallFunctionObjectRegister()
        default                        : return self.NumVarArgsRegister()
    }
}

// AssertFrameLocationValid panics unless loc resolves to both a virtual
// register and an interpreter slot in this frame.
func (self *InlinedCallFrame) AssertFrameLocationValid(loc InterpreterFrameLocation) {
    _ = self.VirtualRegisterForLocation(loc)
    _ = self.InterpreterSlotForLocation(loc)
}

/** Liveness **/

func (self *InlinedCallFrame) SetBytecodeLiveness(v *BytecodeLiveness) {
    if self.liveness != nil || v == nil {
        panic("ir: bytecode liveness can only be set once")
    }
    self.liveness = v
}

func (self *InlinedCallFrame) BytecodeLiveness() *BytecodeLiveness {
    if self.liveness == nil {
        panic("ir: frame has no bytecode liveness")
    }
    return self.liveness
}

// SetInterpreterSlotBeforeFrameBaseMapping records what slot (which lies
// below this frame's base) holds while this frame is executing.
func (self *InlinedCallFrame) SetInterpreterSlotBeforeFrameBaseMapping(slot InterpreterSlot, info VirtualRegisterMappingInfo) {
    if slot.v >= self.base {
        panic("ir: slot is not below the frame base")
    }
    if self.beforeBase[slot.v].IsInitialized() || !info.IsInitialized() {
        panic(fmt.Sprintf("ir: mapping for %s set twice or left uninitialized", slot))
    }
    self.beforeBase[slot.v] = info
}

func (self *InlinedCallFrame) AssertVirtualRegisterMappingBeforeThisFrameComplete() {
    for i, v := range self.beforeBase {
        if !v.IsInitialized() {
            panic(fmt.Sprintf("ir: mapping for is%d below the frame base is missing", i))
        }
    }
}

func (self *InlinedCallFrame) VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(slot InterpreterSlot) VirtualRegisterMappingInfo {
    if slot.v >= self.base {
        panic("ir: slot is not below the frame base")
    }
    if !self.beforeBase[slot.v].IsInitialized() {
        panic(fmt.Sprintf("ir: mapping for %s is missing", slot))
    }
    return self.beforeBase[slot.v]
}

func (self *InlinedCallFrame) IsInterpreterSlotBeforeFrameBaseLive(slot InterpreterSlot) bool {
    return self.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(slot).IsLive()
}

// MappingAt is the mapping of an absolute interpreter slot at the BeforeUse
// point of bytecode bcIndex of this frame.
func (self *InlinedCallFrame) MappingAt(bcIndex uint32, slot InterpreterSlot) VirtualRegisterMappingInfo {
    if slot.v < self.base {
        return self.VirtualRegisterInfoForInterpreterSlotBeforeFrameBase(slot)
    }
    if local := slot.v - self.base; local >= self.NumBytecodeLocals() {
        return DeadMapping()
    } else if !self.BytecodeLiveness().IsLocalLive(bcIndex, BeforeUse, local) {
        return DeadMapping()
    } else {
        return VRegMapping(self.RegisterForLocalOrd(local))
    }
}

func (self *InlinedCallFrame) String() string {
    name := "?"
    if self.cb != nil {
        name = self.cb.Name
    }
    if self.hasOrd {
        return fmt.Sprintf("frame#%d(%s, base=%d)", self.ord, name, self.base)
    }
    return fmt.Sprintf("frame#?(%s, base=%d)", name, self.base)
}
