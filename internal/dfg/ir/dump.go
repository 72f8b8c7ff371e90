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
    `strings`
)

func (self *Node) dumpInputs() string {
    buf := make([]string, 0, self.NumInputs())
    self.ForEachInputEdge(func(e *Edge) { buf = append(buf, e.String()) })
    return strings.Join(buf, ", ")
}

func (self *Node) dumpLine() string {
    var sb strings.Builder
    if self.outInit && self.NumTotalOutputs() != 0 {
        sb.WriteString(fmt.Sprintf("%%%d = ", self.ref))
    }
    sb.WriteString(self.kind.String())

    /* kind-specific payload */
    switch self.kind {
        case KindGetLocal, KindSetLocal : sb.WriteString(fmt.Sprintf("<%s@%s>", self.LocalLocation(), self.LocalFrame()))
        case KindShadowStore            : sb.WriteString(fmt.Sprintf("<%s>", self.ShadowStoreInterpreterSlot()))
        case KindGetKthVariadicRes      : sb.WriteString(fmt.Sprintf("<%d>", self.VariadicResOrdinal()))
        case KindCheckU64InBound        : sb.WriteString(fmt.Sprintf("<%d>", self.U64Bound()))
        case KindU64SaturateSub         : sb.WriteString(fmt.Sprintf("<%d>", self.ValueToSub()))
        case KindGetUpvalue             : sb.WriteString(fmt.Sprintf("<%d>", self.UpvalueOrdinal()))
        case KindSetUpvalue             : sb.WriteString(fmt.Sprintf("<%d>", self.UpvalueOrdinal()))
    }
    if self.kind == KindShadowStoreUndefToRange {
        start, n := self.ShadowStoreUndefRange()
        sb.WriteString(fmt.Sprintf("<%s+%d>", start, n))
    }

    /* inputs and the variadic result producer */
    sb.WriteString("(" + self.dumpInputs() + ")")
    if self.flags.AccessesVR() {
        if self.vrInput == 0 {
            sb.WriteString(" vr=<inherit>")
        } else {
            sb.WriteString(fmt.Sprintf(" vr=%%%d", self.vrInput))
        }
    }
    return sb.String()
}

func (self *Node) dumpConstant() string {
    switch self.kind {
        case KindConstant          : return fmt.Sprintf("%%%d = Constant<%#x>", self.ref, self.ConstantValue())
        case KindUnboxedConstant   : return fmt.Sprintf("%%%d = UnboxedConstant<%d>", self.ref, self.ConstantValue())
        case KindArgument          : return fmt.Sprintf("%%%d = Argument<%d>", self.ref, self.ArgumentOrdinal())
        case KindGetKthVariadicArg : return fmt.Sprintf("%%%d = GetKthVariadicArg<%d>", self.ref, self.VariadicArgOrdinal())
        default                    : return fmt.Sprintf("%%%d = %s", self.ref, self.kind)
    }
}

// Dump renders the constant-like nodes followed by every basic block.
func (self *Graph) Dump() string {
    buf := make([]string, 0, len(self.nodes) + len(self.Blocks))

    /* constant-like nodes */
    self.ForEachConstantLikeNode(func(n *Node) {
        buf = append(buf, "    " + n.dumpConstant())
    })

    /* basic blocks */
    for _, bb := range self.Blocks {
        succ := make([]string, 0, 2)
        if bb.numSucc >= 0 {
            for i := 0; i < bb.numSucc; i++ {
                succ = append(succ, bb.successors[i].String())
            }
        }
        buf = append(buf, fmt.Sprintf("%s: -> [%s]", bb, strings.Join(succ, ", ")))
        for _, n := range bb.Nodes {
            buf = append(buf, "    " + n.dumpLine())
        }
    }

    /* join them together */
    return fmt.Sprintf(
        "Graph (%s) {\n%s\n}",
        self.form,
        strings.Join(buf, "\n"),
    )
}
