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

// Flags holds the independent behavioural bits of a node.
type Flags uint32

const (
    _F_mayOsrExit Flags = 1 << iota
    _F_exitOK
    _F_generatesVR
    _F_accessesVR
    _F_clobbersVR
    _F_accessesVA
    _F_makesTailCall
    _F_tailCallTransformed
    _F_barrier
    _F_branchTarget
    _F_referenced
)

const (
    _F_sisShift = 16
    _F_sisMask  = Flags(0xf) << _F_sisShift
)

// MaxInlinerICSiteOrdinal is the largest call IC site ordinal a node can be
// specialized for.
const MaxInlinerICSiteOrdinal = 6

func (self *Flags) get(bit Flags) bool {
    return *self & bit != 0
}

func (self *Flags) set(bit Flags, val bool) {
    if val {
        *self |= bit
    } else {
        *self &^= bit
    }
}

// MayOsrExit only covers the node itself, not the checks on its inputs.
func (self *Flags) MayOsrExit() bool          { return self.get(_F_mayOsrExit) }
func (self *Flags) SetMayOsrExit(v bool)      { self.set(_F_mayOsrExit, v) }
func (self *Flags) IsExitOK() bool            { return self.get(_F_exitOK) }
func (self *Flags) SetExitOK(v bool)          { self.set(_F_exitOK, v) }
func (self *Flags) GeneratesVR() bool         { return self.get(_F_generatesVR) }
func (self *Flags) SetGeneratesVR(v bool)     { self.set(_F_generatesVR, v) }
func (self *Flags) AccessesVR() bool          { return self.get(_F_accessesVR) }
func (self *Flags) SetAccessesVR(v bool)      { self.set(_F_accessesVR, v) }
func (self *Flags) ClobbersVR() bool          { return self.get(_F_clobbersVR) }
func (self *Flags) SetClobbersVR(v bool)      { self.set(_F_clobbersVR, v) }
func (self *Flags) AccessesVA() bool          { return self.get(_F_accessesVA) }
func (self *Flags) SetAccessesVA(v bool)      { self.set(_F_accessesVA, v) }
func (self *Flags) IsBarrier() bool           { return self.get(_F_barrier) }
func (self *Flags) SetBarrier(v bool)         { self.set(_F_barrier, v) }
func (self *Flags) HasBranchTarget() bool     { return self.get(_F_branchTarget) }
func (self *Flags) SetHasBranchTarget(v bool) { self.set(_F_branchTarget, v) }

// MakesTailCall ignores whether the tail call has been turned into a
// normal call by inlining.
func (self *Flags) MakesTailCall() bool      { return self.get(_F_makesTailCall) }
func (self *Flags) SetMakesTailCall(v bool)  { self.set(_F_makesTailCall, v) }

func (self *Flags) TailCallTransformedToNormalCall() bool     { return self.get(_F_tailCallTransformed) }
func (self *Flags) SetTailCallTransformedToNormalCall(v bool) { self.set(_F_tailCallTransformed, v) }

// IsReferenced is only accurate right after it has been recomputed, and is
// meaningless for constant-like nodes.
func (self *Flags) IsReferenced() bool     { return self.get(_F_referenced) }
func (self *Flags) SetReferenced(v bool)   { self.set(_F_referenced, v) }

func (self *Flags) SetNotSpecializedForInliner() {
    *self &^= _F_sisMask
}

func (self *Flags) SetInlinerSpecialization(isPrologue bool, icSite uint8) {
    if icSite > MaxInlinerICSiteOrdinal {
        panic("ir: inliner IC site ordinal out of range")
    }
    v := Flags(icSite) * 2 + 2
    if !isPrologue {
        v++
    }
    *self = *self &^ _F_sisMask | v << _F_sisShift
}

func (self *Flags) sis() Flags {
    return (*self & _F_sisMask) >> _F_sisShift
}

func (self *Flags) InlinerSpecialization() SISKind {
    switch v := self.sis(); {
        case v == 0     : return SISNone
        case v % 2 == 0 : return SISPrologue
        default         : return SISEpilogue
    }
}

func (self *Flags) IsSpecializedForInlining() bool {
    return self.sis() != 0
}

func (self *Flags) InlinerICSite() uint8 {
    v := self.sis()
    if v < 2 {
        panic("ir: node is not specialized for inlining")
    }
    return uint8((v - 2) / 2)
}

func (self *Flags) resetForNop() {
    *self &^= _F_mayOsrExit |
        _F_generatesVR |
        _F_accessesVR |
        _F_clobbersVR |
        _F_accessesVA |
        _F_makesTailCall |
        _F_tailCallTransformed |
        _F_barrier |
        _F_branchTarget |
        _F_sisMask
}
