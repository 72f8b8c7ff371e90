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
    `encoding/binary`
    `fmt`
)

// NodeRef is an index into the node arena of a Graph. Zero is nil.
type NodeRef uint32

const (
    _MaxInlineInputs = 3
)

// SISKind is the speculative-inlining specialization of a node.
type SISKind uint8

const (
    SISNone SISKind = iota
    SISPrologue
    SISEpilogue
)

// OutputInfo describes one output of a node.
type OutputInfo struct {
    Speculation TypeMask
}

type _LocalAccess struct {
    frame *InlinedCallFrame
    loc   InterpreterFrameLocation
    lvi   *LogicalVariableInfo
}

// Node is one SSA operation. Nodes are created by the factory methods of
// Graph, which fix the input and output counts.
type Node struct {
    g           *Graph
    ref         NodeRef
    kind        NodeKind
    variant     uint16
    flags       Flags
    nin         int
    inl         [_MaxInlineInputs]Edge
    ext         []Edge
    outInit     bool
    hasDirect   bool
    numExtra    uint16
    outputs     []OutputInfo
    outGPR      bool
    nsd         [8]byte
    nsdExt      []byte
    vrInput     NodeRef
    local       *_LocalAccess
    getLocalPhi PhiRef
    replacement Value
    origin      CodeOrigin
    exitDest    OsrExitDestination
    physSlot    uint32
    hasPhysSlot bool
    constOrd    int64
    hasConstOrd bool
    Marker      uint64
}

func (self *Node) Ref() NodeRef       { return self.ref }
func (self *Node) Graph() *Graph      { return self.g }
func (self *Node) Kind() NodeKind     { return self.kind }
func (self *Node) IsBuiltin() bool    { return self.kind.IsBuiltin() }
func (self *Node) Flags() *Flags      { return &self.flags }

// Value returns the direct output of this node.
func (self *Node) Value() Value {
    if !self.HasDirectOutput() {
        panic(fmt.Sprintf("ir: %s has no direct output", self.kind))
    }
    return Value { self.ref, 0 }
}

func (self *Node) Output(ord uint16) Value {
    if !self.IsOutputOrdValid(ord) {
        panic(fmt.Sprintf("ir: %s has no output %d", self.kind, ord))
    }
    return Value { self.ref, ord }
}

func (self *Node) Opcode() uint16 {
    return self.kind.Opcode()
}

// Variant is the codegen variant selected for a guest node.
func (self *Node) Variant() uint16 {
    if self.IsBuiltin() {
        panic("ir: builtin node has no variant")
    }
    return self.variant
}

func (self *Node) SetVariant(v uint16) {
    if self.IsBuiltin() {
        panic("ir: builtin node has no variant")
    }
    self.variant = v
}

func (self *Node) Is(kind NodeKind) bool {
    return self.kind == kind
}

// IsConstantLike reports whether the node behaves like a constant: it never
// appears inside a basic block but may be referenced from anywhere.
func (self *Node) IsConstantLike() bool {
    switch self.kind {
        case KindConstant          : return true
        case KindUnboxedConstant   : return true
        case KindUndefValue        : return true
        case KindArgument          : return true
        case KindGetFunctionObject : return true
        case KindGetNumVariadicArgs: return true
        case KindGetKthVariadicArg : return true
        default                    : return false
    }
}

/** Inputs **/

func (self *Node) SetNumInputs(n int) {
    if self.nin >= 0 {
        panic("ir: number of inputs is already set")
    }
    self.setNumInputs(n)
}

// ResetNumInputs changes the number of inputs, invalidating every edge.
func (self *Node) ResetNumInputs(n int) {
    self.setNumInputs(n)
}

func (self *Node) setNumInputs(n int) {
    if n < 0 {
        panic("ir: negative number of inputs")
    }
    self.nin = n
    self.inl = [_MaxInlineInputs]Edge{}
    if n > _MaxInlineInputs {
        self.ext = make([]Edge, n - (_MaxInlineInputs - 1))
    } else {
        self.ext = nil
    }
}

func (self *Node) NumInputs() int {
    if self.nin < 0 {
        panic(fmt.Sprintf("ir: number of inputs of %%%d is not set", self.ref))
    }
    return self.nin
}

func (self *Node) HasOutlinedInput() bool {
    return self.NumInputs() > _MaxInlineInputs
}

// InputEdge returns a pointer to input edge i, valid until the number of
// inputs changes.
func (self *Node) InputEdge(i int) *Edge {
    if i < 0 || i >= self.NumInputs() {
        panic(fmt.Sprintf("ir: input %d of %%%d out of range", i, self.ref))
    }
    if i < _MaxInlineInputs - 1 || self.nin <= _MaxInlineInputs {
        return &self.inl[i]
    } else {
        return &self.ext[i - (_MaxInlineInputs - 1)]
    }
}

func (self *Node) SetInput(i int, v Value) {
    self.SetInputEdge(i, self.g.NewEdge(v, UseKindUntyped, false))
}

func (self *Node) SetInputEdge(i int, e Edge) {
    *self.InputEdge(i) = e
}

func (self *Node) ForEachInputEdge(fn func(*Edge)) {
    for i, n := 0, self.NumInputs(); i < n; i++ {
        fn(self.InputEdge(i))
    }
}

/** Outputs **/

func (self *Node) SetNumOutputs(hasDirect bool, numExtra int) {
    if self.outInit {
        panic("ir: number of outputs is already set")
    }
    self.ResetNumOutputs(hasDirect, numExtra)
}

// ResetNumOutputs changes the output shape, invalidating every output.
func (self *Node) ResetNumOutputs(hasDirect bool, numExtra int) {
    if numExtra < 0 || numExtra > 0xffff {
        panic("ir: number of extra outputs out of range")
    }
    self.outInit = true
    self.hasDirect = hasDirect
    self.numExtra = uint16(numExtra)
    self.outGPR = false
    if hasDirect || numExtra > 0 {
        self.outputs = make([]OutputInfo, numExtra + 1)
    } else {
        self.outputs = nil
    }
}

func (self *Node) assertOutputsInit() {
    if !self.outInit {
        panic(fmt.Sprintf("ir: number of outputs of %%%d is not set", self.ref))
    }
}

func (self *Node) HasDirectOutput() bool {
    self.assertOutputsInit()
    return self.hasDirect
}

func (self *Node) NumExtraOutputs() int {
    self.assertOutputsInit()
    return int(self.numExtra)
}

func (self *Node) HasExtraOutput() bool {
    return self.NumExtraOutputs() > 0
}

func (self *Node) NumTotalOutputs() int {
    if self.HasDirectOutput() {
        return 1 + self.NumExtraOutputs()
    } else {
        return self.NumExtraOutputs()
    }
}

func (self *Node) IsOutputOrdValid(ord uint16) bool {
    lo := uint16(1)
    if self.HasDirectOutput() {
        lo = 0
    }
    return lo <= ord && ord <= self.numExtra
}

func (self *Node) OutputInfo(ord uint16) *OutputInfo {
    if !self.IsOutputOrdValid(ord) {
        panic(fmt.Sprintf("ir: %s has no output %d", self.kind, ord))
    }
    return &self.outputs[ord]
}

// SetOutputRegisterBankDecision records whether the direct output lives in
// a GPR (true) or an FPR (false).
func (self *Node) SetOutputRegisterBankDecision(gpr bool) {
    if !self.HasDirectOutput() {
        panic("ir: bank decision on a node without direct output")
    }
    self.outGPR = gpr
}

func (self *Node) ShouldOutputRegisterBankUseGPR() bool {
    if !self.HasDirectOutput() {
        panic("ir: bank decision on a node without direct output")
    }
    return self.outGPR
}

// MayOsrExit also takes the type checks of the input edges into account.
func (self *Node) MayOsrExit() bool {
    if self.flags.MayOsrExit() {
        return true
    }
    for i, n := 0, self.NumInputs(); i < n; i++ {
        if self.InputEdge(i).NeedsTypeCheck() {
            return true
        }
    }
    return false
}

/** Node-specific data **/

func (self *Node) ParamAsUInt64() uint64 {
    return binary.LittleEndian.Uint64(self.nsd[:])
}

func (self *Node) SetParamAsUInt64(v uint64) {
    binary.LittleEndian.PutUint64(self.nsd[:], v)
}

// SetNodeSpecificDataLength sizes the payload of a guest node. Payloads of
// up to 8 bytes live inline.
func (self *Node) SetNodeSpecificDataLength(n int) {
    if self.IsBuiltin() {
        panic("ir: builtin nodes have a fixed payload")
    }
    if self.nsdExt != nil {
        panic("ir: payload length is already set")
    }
    if n > len(self.nsd) {
        self.nsdExt = make([]byte, n)
    }
}

func (self *Node) NodeSpecificData() []byte {
    if self.nsdExt != nil {
        return self.nsdExt
    } else {
        return self.nsd[:]
    }
}

func (self *Node) HasOutlinedNodeSpecificData() bool {
    return self.nsdExt != nil
}

func (self *Node) assertKind(kind NodeKind) {
    if self.kind != kind {
        panic(fmt.Sprintf("ir: expected %s, got %s", kind, self.kind))
    }
}

// ConstantValue is the 64-bit pattern of a Constant or UnboxedConstant.
func (self *Node) ConstantValue() uint64 {
    if self.kind != KindConstant && self.kind != KindUnboxedConstant {
        panic("ir: not a constant node")
    }
    return self.ParamAsUInt64()
}

func (self *Node) ArgumentOrdinal() uint32 {
    self.assertKind(KindArgument)
    return uint32(self.ParamAsUInt64())
}

func (self *Node) VariadicArgOrdinal() uint32 {
    self.assertKind(KindGetKthVariadicArg)
    return uint32(self.ParamAsUInt64())
}

func (self *Node) UpvalueOrdinal() uint32 {
    if self.kind != KindGetUpvalue && self.kind != KindSetUpvalue {
        panic("ir: not an upvalue node")
    }
    return uint32(self.ParamAsUInt64())
}

func (self *Node) IsUpvalueImmutable() bool {
    self.assertKind(KindGetUpvalue)
    return self.ParamAsUInt64() >> 32 != 0
}

func (self *Node) ShadowStoreInterpreterSlot() InterpreterSlot {
    self.assertKind(KindShadowStore)
    return InterpreterSlot { uint32(self.ParamAsUInt64()) }
}

// ShadowStoreUndefRange returns the first slot and the slot count.
func (self *Node) ShadowStoreUndefRange() (InterpreterSlot, uint32) {
    self.assertKind(KindShadowStoreUndefToRange)
    v := self.ParamAsUInt64()
    return InterpreterSlot { uint32(v) }, uint32(v >> 32)
}

func (self *Node) VariadicResOrdinal() uint64 {
    self.assertKind(KindGetKthVariadicRes)
    return self.ParamAsUInt64()
}

func (self *Node) NumFixedVariadicResTerms() uint64 {
    self.assertKind(KindCreateVariadicRes)
    return self.ParamAsUInt64()
}

func (self *Node) U64Bound() uint64 {
    self.assertKind(KindCheckU64InBound)
    return self.ParamAsUInt64()
}

func (self *Node) ValueToSub() int64 {
    self.assertKind(KindU64SaturateSub)
    return int64(self.ParamAsUInt64())
}

// SelfReferenceUpvalue is the upvalue that refers to the created function
// itself, or -1.
func (self *Node) SelfReferenceUpvalue() int64 {
    self.assertKind(KindCreateFunctionObject)
    return int64(self.ParamAsUInt64())
}

/** Variadic results **/

func (self *Node) SetVariadicResultInputNode(n NodeRef) {
    if !self.flags.AccessesVR() {
        panic("ir: node does not access variadic results")
    }
    self.vrInput = n
}

// VariadicResultInputNode is the producer of the variadic results this node
// reads; zero means they are inherited from a predecessor block.
func (self *Node) VariadicResultInputNode() NodeRef {
    if !self.flags.AccessesVR() {
        panic("ir: node does not access variadic results")
    }
    return self.vrInput
}

/** Local variable access **/

func (self *Node) HasLogicalVariableInfo() bool {
    return self.kind == KindGetLocal || self.kind == KindSetLocal
}

func (self *Node) localAccess() *_LocalAccess {
    if !self.HasLogicalVariableInfo() {
        panic(fmt.Sprintf("ir: %s does not access a local", self.kind))
    }
    return self.local
}

func (self *Node) LocalFrame() *InlinedCallFrame {
    return self.localAccess().frame
}

func (self *Node) LocalLocation() InterpreterFrameLocation {
    return self.localAccess().loc
}

// LocalVirtualRegister resolves the virtual register through the frame;
// after unification the logical variable holds the same answer.
func (self *Node) LocalVirtualRegister() VirtualRegister {
    la := self.localAccess()
    return la.frame.VirtualRegisterForLocation(la.loc)
}

func (self *Node) LocalInterpreterSlot() InterpreterSlot {
    la := self.localAccess()
    return la.frame.InterpreterSlotForLocation(la.loc)
}

func (self *Node) isLocalConsistentWith(other *Node) bool {
    a, b := self.localAccess(), other.localAccess()
    return a.frame == b.frame && a.loc == b.loc
}

func (self *Node) IsLogicalVariableSetUp() bool {
    return self.localAccess().lvi != nil
}

func (self *Node) LogicalVariable() *LogicalVariableInfo {
    if lvi := self.localAccess().lvi; lvi == nil {
        panic(fmt.Sprintf("ir: logical variable of %%%d is not set up", self.ref))
    } else {
        return lvi
    }
}

// DataFlowInfoForGetLocal is the Phi describing the value a GetLocal reads.
// Only valid in block-local SSA form.
func (self *Node) DataFlowInfoForGetLocal() PhiRef {
    self.assertKind(KindGetLocal)
    return self.getLocalPhi
}

func (self *Node) SetDataFlowInfoForGetLocal(phi PhiRef) {
    self.assertKind(KindGetLocal)
    self.getLocalPhi = phi
}

/** Stack layout stamps **/

func (self *Node) AssignPhysicalSlot(slot uint32) {
    if !self.HasLogicalVariableInfo() {
        panic("ir: only local accesses have a physical slot")
    }
    self.physSlot, self.hasPhysSlot = slot, true
}

func (self *Node) HasPhysicalSlot() bool {
    return self.hasPhysSlot
}

func (self *Node) PhysicalSlot() uint32 {
    if !self.hasPhysSlot {
        panic(fmt.Sprintf("ir: %%%d has no physical slot", self.ref))
    }
    return self.physSlot
}

func (self *Node) IsOrdInConstantTableAssigned() bool {
    return self.hasConstOrd
}

func (self *Node) AssignConstantTableOrd(ord int64) {
    if self.kind != KindConstant && self.kind != KindUnboxedConstant {
        panic("ir: only constants have a constant table ordinal")
    }
    if self.hasConstOrd {
        panic("ir: constant table ordinal assigned twice")
    }
    self.constOrd, self.hasConstOrd = ord, true
}

func (self *Node) ModifyConstantTableOrd(ord int64) {
    if !self.hasConstOrd {
        panic("ir: constant table ordinal is not assigned")
    }
    self.constOrd = ord
}

func (self *Node) ConstantTableOrd() int64 {
    if !self.hasConstOrd {
        panic(fmt.Sprintf("ir: %%%d has no constant table ordinal", self.ref))
    }
    return self.constOrd
}

/** Origin **/

func (self *Node) SetNodeOrigin(origin CodeOrigin) {
    if !self.origin.IsInvalid() {
        panic("ir: node origin is already set")
    }
    if origin.IsInvalid() {
        panic("ir: invalid node origin")
    }
    self.origin = origin
}

func (self *Node) NodeOrigin() CodeOrigin {
    if self.origin.IsInvalid() {
        panic(fmt.Sprintf("ir: %%%d has no origin", self.ref))
    }
    return self.origin
}

func (self *Node) HasNodeOrigin() bool {
    return !self.origin.IsInvalid()
}

func (self *Node) SetOsrExitDest(dest OsrExitDestination) { self.exitDest = dest }
func (self *Node) OsrExitDest() OsrExitDestination        { return self.exitDest }

/** Replacement **/

func (self *Node) ClearReplacement() {
    self.replacement = Value{}
}

func (self *Node) Replacement() Value {
    return self.replacement
}

// SetReplacement redirects every use of the single direct output of this
// node to v.
func (self *Node) SetReplacement(v Value) {
    if v.IsNil() || !self.g.Node(v.Node).IsOutputOrdValid(v.Output) {
        panic("ir: invalid replacement value")
    }
    if !self.HasDirectOutput() || self.HasExtraOutput() {
        panic("ir: replacement requires a single direct output")
    }
    if self.IsConstantLike() {
        panic("ir: constant-like nodes cannot be replaced")
    }
    self.replacement = v
}

func (self *Node) replaceEdge(e *Edge) {
    r := self.g.Node(e.operand).replacement
    if r.IsNil() {
        return
    }
    if e.output != 0 {
        panic("ir: replaced operand is not a direct output")
    }
    e.operand, e.output = r.Node, r.Output
    if dst := self.g.Node(r.Node); !dst.replacement.IsNil() || !dst.IsOutputOrdValid(r.Output) {
        panic("ir: replacement chain is not resolved")
    }
}

func (self *Node) DoReplacementForInputs() {
    self.ForEachInputEdge(self.replaceEdge)
}

// DoReplacementForInputsAndSetReferenceBit also marks every operand as
// referenced.
func (self *Node) DoReplacementForInputsAndSetReferenceBit() {
    self.ForEachInputEdge(func(e *Edge) {
        self.replaceEdge(e)
        op := self.g.Node(e.operand)
        if !op.IsOutputOrdValid(e.output) {
            panic("ir: edge refers to an invalid output")
        }
        op.flags.SetReferenced(true)
    })
}

/** Nop conversion **/

func (self *Node) setFlagsForNop() {
    self.flags.resetForNop()
    self.vrInput = 0
}

// ConvertToNop drops all outputs and every input edge that does not need a
// type check.
func (self *Node) ConvertToNop() {
    self.ResetNumOutputs(false, 0)
    self.kind = KindNop
    self.local = nil
    self.setFlagsForNop()

    /* keep the checked edges in order */
    kept := make([]Edge, 0, self.NumInputs())
    self.ForEachInputEdge(func(e *Edge) {
        if e.NeedsTypeCheck() {
            kept = append(kept, *e)
        }
    })

    self.setNumInputs(len(kept))
    for i, e := range kept {
        *self.InputEdge(i) = e
    }
}

func (self *Node) ConvertToNopAndForceRemoveAllInputs() {
    self.ResetNumOutputs(false, 0)
    self.ResetNumInputs(0)
    self.kind = KindNop
    self.local = nil
    self.setFlagsForNop()
}

/** Control flow **/

// NumControlFlowSuccessors is the number of places this node may transfer
// control to.
func (self *Node) NumControlFlowSuccessors() int {
    barrier := self.flags.IsBarrier()
    branch := self.flags.HasBranchTarget()
    tail := self.flags.MakesTailCall()
    xform := self.flags.TailCallTransformedToNormalCall()

    /* consistency */
    if xform && !tail {
        panic("ir: transformed tail call on a node without tail call")
    }
    if tail && (!barrier || branch) {
        panic("ir: tail-calling node must be a barrier without branch target")
    }

    /* tail calls either leave or return to the caller's continuation */
    if tail {
        if xform {
            return 1
        } else {
            return 0
        }
    }

    /* fallthrough plus branch */
    n := 0
    if !barrier {
        n++
    }
    if branch {
        n++
    }
    return n
}

// IsTerminal reports whether the node does not have exactly one successor.
func (self *Node) IsTerminal() bool {
    return self.NumControlFlowSuccessors() != 1
}

func (self *Node) String() string {
    return fmt.Sprintf("%%%d = %s", self.ref, self.kind)
}
