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

// UseKind is the type precondition an edge places on its operand.
type UseKind uint16

const (
    // UseKindUntyped is a boxed value with no type assumption.
    UseKindUntyped UseKind = iota

    // UseKindKnownCapturedVar is an unboxed pointer to a closed upvalue object.
    UseKindKnownCapturedVar

    // UseKindKnownUnboxedInt64 is statically known to be an unboxed 64-bit integer.
    UseKindKnownUnboxedInt64

    // UseKindUnreachable marks a use that can never execute.
    UseKindUnreachable

    // UseKindAlwaysOsrExit marks a use whose check always fails.
    UseKindAlwaysOsrExit

    // UseKindFirstProven is the first use kind defined by the guest language.
    UseKindFirstProven
)

var _UseKindNames = [...]string {
    UseKindUntyped           : "Untyped",
    UseKindKnownCapturedVar  : "KnownCapturedVar",
    UseKindKnownUnboxedInt64 : "KnownUnboxedInt64",
    UseKindUnreachable       : "Unreachable",
    UseKindAlwaysOsrExit     : "AlwaysOsrExit",
}

func (self UseKind) IsBuiltin() bool {
    return self < UseKindFirstProven
}

// GuestOrdinal is the ordinal of a guest use kind within the guest table.
func (self UseKind) GuestOrdinal() int {
    if self.IsBuiltin() {
        panic("ir: builtin use kind has no guest ordinal")
    }
    return int(self - UseKindFirstProven)
}

func (self UseKind) String() string {
    if self.IsBuiltin() {
        return _UseKindNames[self]
    } else {
        return fmt.Sprintf("uk%d", self.GuestOrdinal())
    }
}
