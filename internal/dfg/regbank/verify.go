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
package regbank

import (
    `fmt`

    `github.com/cloudwego/dfg/internal/dfg/ir`
    `github.com/cloudwego/dfg/internal/dfg/traits`
)

// IllegalBankError reports a decision the traits do not allow.
type IllegalBankError struct {
    Node    *ir.Node
    Operand int
    GPR     bool
}

func (self IllegalBankError) Error() string {
    bank := "fpr"
    if self.GPR {
        bank = "gpr"
    }
    if self.Operand < 0 {
        return fmt.Sprintf("output of %s may not be in %s", self.Node, bank)
    } else {
        return fmt.Sprintf("operand %d of %s may not be in %s", self.Operand, self.Node, bank)
    }
}

// Verify checks every decision made by Assign against t. Builtins with
// bespoke codegen and guest variants that disable register allocation are
// not checked.
func Verify(g *ir.Graph, t *traits.Table) error {
    for _, bb := range g.Blocks {
        for _, n := range bb.Nodes {
            var v *traits.Variant

            /* find the traits */
            if n.IsBuiltin() {
                v = t.Builtin(n.Kind())
            } else if v = t.GuestVariant(n.Opcode(), n.Variant()); !v.IsRegAllocEnabled() {
                continue
            }

            /* no traits, nothing to check */
            if v == nil {
                continue
            }
            if v.HasOutput() != n.HasDirectOutput() || n.NumInputs() < v.NumOperandsForRA() {
                return fmt.Errorf("%s does not match its traits %s", n, v)
            }

            /* output */
            if v.HasOutput() {
                if gpr := n.ShouldOutputRegisterBankUseGPR(); !v.Output.Allows(gpr) {
                    return IllegalBankError { Node: n, Operand: -1, GPR: gpr }
                }
            }

            /* operands */
            for i := 0; i < v.NumOperandsForRA(); i++ {
                if gpr := n.InputEdge(i).ShouldUseGPR(); !v.Operand(i).Allows(gpr) {
                    return IllegalBankError { Node: n, Operand: i, GPR: gpr }
                }
            }
        }
    }
    return nil
}
