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

func (self *Graph) newFixed(kind NodeKind, hasDirect bool, inputs ...Value) *Node {
    ret := self.newNode(kind)
    ret.SetNumInputs(len(inputs))
    ret.SetNumOutputs(hasDirect, 0)
    for i, v := range inputs {
        ret.SetInput(i, v)
    }
    return ret
}

func (self *Graph) newLeaf(kind NodeKind) *Node {
    return self.newFixed(kind, true)
}

// NewGuestNode creates a node for guest opcode op. The caller fills in the
// inputs and the payload.
func (self *Graph) NewGuestNode(op uint16, numInputs int, hasDirect bool, numExtra int) *Node {
    ret := self.newNode(GuestKind(op))
    ret.SetNumInputs(numInputs)
    ret.SetNumOutputs(hasDirect, numExtra)
    return ret
}

func (self *Graph) NewNop() *Node {
    return self.newFixed(KindNop, false)
}

func (self *Graph) newLocalAccess(kind NodeKind, frame *InlinedCallFrame, loc InterpreterFrameLocation, inputs ...Value) *Node {
    frame.AssertFrameLocationValid(loc)
    ret := self.newFixed(kind, kind == KindGetLocal, inputs...)
    ret.local = &_LocalAccess { frame: frame, loc: loc }
    self.dsu.MakeSet(ret.ref)
    return ret
}

func (self *Graph) NewGetLocal(frame *InlinedCallFrame, loc InterpreterFrameLocation) *Node {
    return self.newLocalAccess(KindGetLocal, frame, loc)
}

func (self *Graph) NewSetLocal(frame *InlinedCallFrame, loc InterpreterFrameLocation, v Value) *Node {
    return self.newLocalAccess(KindSetLocal, frame, loc, v)
}

func (self *Graph) NewPhantom(v Value) *Node {
    return self.newFixed(KindPhantom, false, v)
}

func (self *Graph) NewCreateCapturedVar(v Value) *Node {
    return self.newFixed(KindCreateCapturedVar, true, v)
}

func (self *Graph) NewGetCapturedVar(cv Value) *Node {
    return self.newFixed(KindGetCapturedVar, true, cv)
}

func (self *Graph) NewSetCapturedVar(cv Value, v Value) *Node {
    return self.newFixed(KindSetCapturedVar, false, cv, v)
}

func (self *Graph) NewShadowStore(slot InterpreterSlot, v Value) *Node {
    ret := self.newFixed(KindShadowStore, false, v)
    ret.SetParamAsUInt64(uint64(slot.Value()))
    return ret
}

// NewShadowStoreUndefToRange marks n interpreter slots from start as
// holding undefined values.
func (self *Graph) NewShadowStoreUndefToRange(start InterpreterSlot, n uint32) *Node {
    ret := self.newFixed(KindShadowStoreUndefToRange, false)
    ret.SetParamAsUInt64(uint64(start.Value()) | uint64(n) << 32)
    return ret
}

func (self *Graph) assertVRProducer(n NodeRef) {
    if n == 0 || !self.Node(n).flags.GeneratesVR() {
        panic("ir: node does not produce variadic results")
    }
}

func (self *Graph) NewGetKthVariadicRes(k uint64, producer NodeRef) *Node {
    self.assertVRProducer(producer)
    ret := self.newFixed(KindGetKthVariadicRes, true)
    ret.flags.SetAccessesVR(true)
    ret.vrInput = producer
    ret.SetParamAsUInt64(k)
    return ret
}

func (self *Graph) NewGetNumVariadicRes(producer NodeRef) *Node {
    self.assertVRProducer(producer)
    ret := self.newFixed(KindGetNumVariadicRes, true)
    ret.flags.SetAccessesVR(true)
    ret.vrInput = producer
    return ret
}

// NewCreateVariadicRes creates variadic results from the fixed terms. Input
// 0 is the number of extra values; the fixed terms follow.
func (self *Graph) NewCreateVariadicRes(numExtra Value, fixed ...Value) *Node {
    ret := self.newFixed(KindCreateVariadicRes, false, append([]Value { numExtra }, fixed...)...)
    ret.flags.SetGeneratesVR(true)
    ret.flags.SetClobbersVR(true)
    ret.SetParamAsUInt64(uint64(len(fixed)))
    return ret
}

// NewPrependVariadicRes prepends values to the variadic results of
// producer. A zero producer inherits them from the predecessor block.
func (self *Graph) NewPrependVariadicRes(producer NodeRef, values ...Value) *Node {
    if producer != 0 {
        self.assertVRProducer(producer)
    }
    ret := self.newFixed(KindPrependVariadicRes, false, values...)
    ret.flags.SetAccessesVR(true)
    ret.flags.SetClobbersVR(true)
    ret.flags.SetGeneratesVR(true)
    ret.vrInput = producer
    return ret
}

func (self *Graph) NewCheckU64InBound(v Value, bound uint64) *Node {
    ret := self.newFixed(KindCheckU64InBound, false, v)
    ret.flags.SetMayOsrExit(true)
    ret.SetParamAsUInt64(bound)
    return ret
}

func (self *Graph) NewU64SaturateSub(v Value, sub int64) *Node {
    ret := self.newFixed(KindU64SaturateSub, true, v)
    ret.SetParamAsUInt64(uint64(sub))
    return ret
}

// NewCreateFunctionObject creates a closure of the unlinked code block in
// proto. selfRef is the upvalue referring to the closure itself, or -1.
func (self *Graph) NewCreateFunctionObject(proto Value, parent Value, selfRef int64, upvalues ...Value) *Node {
    ret := self.newFixed(KindCreateFunctionObject, true, append([]Value { proto, parent }, upvalues...)...)
    ret.SetParamAsUInt64(uint64(selfRef))
    return ret
}

func (self *Graph) NewGetUpvalue(fn Value, ord uint32, immutable bool) *Node {
    ret := self.newFixed(KindGetUpvalue, true, fn)
    if immutable {
        ret.SetParamAsUInt64(uint64(ord) | 1 << 32)
    } else {
        ret.SetParamAsUInt64(uint64(ord))
    }
    return ret
}

func (self *Graph) NewSetUpvalue(fn Value, ord uint32, v Value) *Node {
    ret := self.newFixed(KindSetUpvalue, false, fn, v)
    ret.SetParamAsUInt64(uint64(ord))
    return ret
}

func (self *Graph) NewReturn(values ...Value) *Node {
    ret := self.newFixed(KindReturn, false, values...)
    ret.flags.SetBarrier(true)
    return ret
}
