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

// NodeKind identifies what a node computes. Kinds from KindFirstGuest
// upwards are one per guest bytecode opcode.
type NodeKind uint16

const (
    KindConstant NodeKind = iota
    KindUnboxedConstant
    KindUndefValue
    KindArgument
    KindGetNumVariadicArgs
    KindGetKthVariadicArg
    KindGetFunctionObject
    KindNop
    KindGetLocal
    KindSetLocal
    KindShadowStore
    KindShadowStoreUndefToRange
    KindPhantom
    KindCreateCapturedVar
    KindGetCapturedVar
    KindSetCapturedVar
    KindGetKthVariadicRes
    KindGetNumVariadicRes
    KindCreateVariadicRes
    KindPrependVariadicRes
    KindCheckU64InBound
    KindU64SaturateSub
    KindCreateFunctionObject
    KindGetUpvalue
    KindSetUpvalue
    KindReturn
    KindPhi
    KindFirstGuest
)

var _KindNames = [...]string {
    KindConstant                : "Constant",
    KindUnboxedConstant         : "UnboxedConstant",
    KindUndefValue              : "UndefValue",
    KindArgument                : "Argument",
    KindGetNumVariadicArgs      : "GetNumVariadicArgs",
    KindGetKthVariadicArg       : "GetKthVariadicArg",
    KindGetFunctionObject       : "GetFunctionObject",
    KindNop                     : "Nop",
    KindGetLocal                : "GetLocal",
    KindSetLocal                : "SetLocal",
    KindShadowStore             : "ShadowStore",
    KindShadowStoreUndefToRange : "ShadowStoreUndefToRange",
    KindPhantom                 : "Phantom",
    KindCreateCapturedVar       : "CreateCapturedVar",
    KindGetCapturedVar          : "GetCapturedVar",
    KindSetCapturedVar          : "SetCapturedVar",
    KindGetKthVariadicRes       : "GetKthVariadicRes",
    KindGetNumVariadicRes       : "GetNumVariadicRes",
    KindCreateVariadicRes       : "CreateVariadicRes",
    KindPrependVariadicRes      : "PrependVariadicRes",
    KindCheckU64InBound         : "CheckU64InBound",
    KindU64SaturateSub          : "U64SaturateSub",
    KindCreateFunctionObject    : "CreateFunctionObject",
    KindGetUpvalue              : "GetUpvalue",
    KindSetUpvalue              : "SetUpvalue",
    KindReturn                  : "Return",
    KindPhi                     : "Phi",
}

// GuestKind returns the node kind of guest opcode op.
func GuestKind(op uint16) NodeKind {
    if uint32(op) + uint32(KindFirstGuest) > 0xffff {
        panic("ir: guest opcode out of range")
    }
    return KindFirstGuest + NodeKind(op)
}

func (self NodeKind) IsBuiltin() bool {
    return self < KindFirstGuest
}

func (self NodeKind) Opcode() uint16 {
    if self.IsBuiltin() {
        panic("ir: builtin node kind has no guest opcode")
    }
    return uint16(self - KindFirstGuest)
}

// BuiltinKindByName resolves the name of a builtin kind.
func BuiltinKindByName(name string) (NodeKind, bool) {
    for i, v := range _KindNames {
        if v == name {
            return NodeKind(i), true
        }
    }
    return 0, false
}

func (self NodeKind) String() string {
    if self.IsBuiltin() {
        return _KindNames[self]
    } else {
        return fmt.Sprintf("op%d", self.Opcode())
    }
}
