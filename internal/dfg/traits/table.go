/*
 * Copyright 2022 CloudWeGo Authors
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

package traits

import (
	"fmt"
	"strings"

	"github.com/cloudwego/dfg/internal/dfg/ir"
)

// Variant is the codegen traits of one node variant.
type Variant struct {
	RegAlloc bool
	Output   BankPref
	Operands []BankPref
}

func (v *Variant) IsRegAllocEnabled() bool { return v.RegAlloc }
func (v *Variant) HasOutput() bool         { return v.Output.Valid() }
func (v *Variant) NumOperandsForRA() int   { return len(v.Operands) }

func (v *Variant) Operand(i int) BankPref {
	if i < 0 || i >= len(v.Operands) {
		panic(fmt.Sprintf("traits: operand %d out of range", i))
	}
	return v.Operands[i]
}

// Opcode is the codegen traits of one guest bytecode opcode.
type Opcode struct {
	Name          string
	FixedOperands int
	RangeOperand  bool
	Variants      []*Variant
}

// Table maps every node kind and use kind the register bank assignment
// may encounter to its codegen traits. It is read-only once built.
type Table struct {
	Features []string
	useKinds map[ir.UseKind]bool
	builtins map[ir.NodeKind]*Variant
	opcodes  []*Opcode
}

// RegAllocBuiltinKinds are the builtin kinds whose codegen is fully
// described by a single register-allocation-enabled variant.
var RegAllocBuiltinKinds = []ir.NodeKind{
	ir.KindGetLocal,
	ir.KindSetLocal,
	ir.KindCreateCapturedVar,
	ir.KindGetCapturedVar,
	ir.KindSetCapturedVar,
	ir.KindGetKthVariadicRes,
	ir.KindGetNumVariadicRes,
	ir.KindCheckU64InBound,
	ir.KindU64SaturateSub,
	ir.KindGetUpvalue,
	ir.KindSetUpvalue,
}

func isRegAllocBuiltin(kind ir.NodeKind) bool {
	for _, k := range RegAllocBuiltinKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TypeCheckUsesGPR reports the bank the check of use kind uk operates on.
func (t *Table) TypeCheckUsesGPR(uk ir.UseKind) bool {
	if v, ok := t.useKinds[uk]; ok {
		return v
	} else {
		panic("traits: no register bank for the check of use kind " + uk.String())
	}
}

// Builtin returns nil for builtin kinds with bespoke codegen.
func (t *Table) Builtin(kind ir.NodeKind) *Variant {
	return t.builtins[kind]
}

func (t *Table) NumOpcodes() int {
	return len(t.opcodes)
}

func (t *Table) Opcode(op uint16) *Opcode {
	if int(op) >= len(t.opcodes) {
		panic(fmt.Sprintf("traits: unknown opcode %d", op))
	}
	return t.opcodes[op]
}

// GuestVariant returns the traits of a variant of a guest opcode.
func (t *Table) GuestVariant(op uint16, variant uint16) *Variant {
	p := t.Opcode(op)
	if int(variant) >= len(p.Variants) {
		panic(fmt.Sprintf("traits: opcode %s has no variant %d", p.Name, variant))
	}
	return p.Variants[variant]
}

// OpcodeByName looks up a guest opcode.
func (t *Table) OpcodeByName(name string) (uint16, bool) {
	for i, p := range t.opcodes {
		if p.Name == name {
			return uint16(i), true
		}
	}
	return 0, false
}

func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "features: %v\n", t.Features)
	for _, k := range RegAllocBuiltinKinds {
		if v := t.builtins[k]; v != nil {
			fmt.Fprintf(&sb, "%s: %s\n", k, v)
		}
	}
	for i, p := range t.opcodes {
		fmt.Fprintf(&sb, "op%d %s (fixed=%d, range=%v)\n", i, p.Name, p.FixedOperands, p.RangeOperand)
		for j, v := range p.Variants {
			fmt.Fprintf(&sb, "    #%d: %s\n", j, v)
		}
	}
	return sb.String()
}

func (v *Variant) String() string {
	if !v.RegAlloc {
		return "noreg"
	}
	out := "-"
	if v.HasOutput() {
		out = v.Output.String()
	}
	return fmt.Sprintf("%v -> %s", v.Operands, out)
}
