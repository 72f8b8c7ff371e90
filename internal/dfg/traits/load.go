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
	_ "embed"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/cpuid/v2"
	"tlog.app/go/errors"

	"github.com/cloudwego/dfg/internal/dfg/ir"
)

//go:embed default.toml
var defaultTable string

var (
	defaultOnce sync.Once
	defaultInst *Table
)

type fileVariant struct {
	RegAlloc *bool      `toml:"reg_alloc"`
	Output   *BankPref  `toml:"output"`
	Operands []BankPref `toml:"operands"`
}

type fileOpcode struct {
	Name          string        `toml:"name"`
	FixedOperands int           `toml:"fixed_operands"`
	RangeOperand  bool          `toml:"range_operand"`
	Variants      []fileVariant `toml:"variant"`
}

type fileTable struct {
	Features      []string               `toml:"required_cpu_features"`
	UseKinds      map[string]BankPref    `toml:"use_kind"`
	GuestUseKinds []BankPref             `toml:"guest_use_kinds"`
	Builtins      map[string]fileVariant `toml:"builtin"`
	Opcodes       []fileOpcode           `toml:"opcode"`
}

// Default returns the embedded trait table. It panics if the embedded
// table is malformed.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTable)
		if err != nil {
			panic("traits: invalid default table: " + err.Error())
		}
		defaultInst = t
	})
	return defaultInst
}

// Parse builds a Table from its TOML text.
func Parse(src string) (*Table, error) {
	var f fileTable
	md, err := toml.Decode(src, &f)
	if err != nil {
		return nil, errors.Wrap(err, "decode trait table")
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return nil, errors.New("unknown trait table key: %v", keys[0])
	}
	return f.build()
}

// Load reads a Table from a TOML file.
func Load(path string) (*Table, error) {
	var f fileTable
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, errors.Wrap(err, "load trait table %v", path)
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return nil, errors.New("%v: unknown trait table key: %v", path, keys[0])
	}
	t, err := f.build()
	if err != nil {
		return nil, errors.Wrap(err, "%v", path)
	}
	return t, nil
}

func (f *fileTable) build() (*Table, error) {
	t := &Table{
		Features: f.Features,
		useKinds: make(map[ir.UseKind]bool),
		builtins: make(map[ir.NodeKind]*Variant),
	}

	/* use kinds: every builtin typed use kind must be covered */
	for name, p := range f.UseKinds {
		uk, ok := useKindByName(name)
		if !ok {
			return nil, errors.New("unknown use kind %q", name)
		}
		if p.HasChoices() {
			return nil, errors.New("use kind %s: the check must use a single bank", name)
		}
		t.useKinds[uk] = p.GprAllowed()
	}
	for uk := ir.UseKindKnownCapturedVar; uk < ir.UseKindFirstProven; uk++ {
		if _, ok := t.useKinds[uk]; !ok {
			return nil, errors.New("missing register bank for use kind %s", uk)
		}
	}
	for i, p := range f.GuestUseKinds {
		if p.HasChoices() {
			return nil, errors.New("guest use kind %d: the check must use a single bank", i)
		}
		t.useKinds[ir.UseKindFirstProven+ir.UseKind(i)] = p.GprAllowed()
	}

	/* builtins: always register-allocation enabled */
	for name, fv := range f.Builtins {
		kind, ok := ir.BuiltinKindByName(name)
		if !ok || !isRegAllocBuiltin(kind) {
			return nil, errors.New("builtin %q has no table-driven codegen", name)
		}
		if fv.RegAlloc != nil && !*fv.RegAlloc {
			return nil, errors.New("builtin %s: register allocation cannot be disabled", name)
		}
		v := fv.variant()
		if len(v.Operands) > 2 {
			return nil, errors.New("builtin %s: too many operands", name)
		}
		t.builtins[kind] = v
	}
	for _, k := range RegAllocBuiltinKinds {
		if t.builtins[k] == nil {
			return nil, errors.New("missing traits for builtin %s", k)
		}
	}

	/* guest opcodes, numbered in order */
	for i, fo := range f.Opcodes {
		if fo.Name == "" || fo.FixedOperands < 0 || len(fo.Variants) == 0 {
			return nil, errors.New("opcode %d: name, fixed_operands and at least one variant are required", i)
		}
		p := &Opcode{
			Name:          fo.Name,
			FixedOperands: fo.FixedOperands,
			RangeOperand:  fo.RangeOperand,
		}
		for j, fv := range fo.Variants {
			v := fv.variant()
			if v.RegAlloc && len(v.Operands) != fo.FixedOperands {
				return nil, errors.New("opcode %s variant %d: %d operands but %d fixed operands", fo.Name, j, len(v.Operands), fo.FixedOperands)
			}
			p.Variants = append(p.Variants, v)
		}
		t.opcodes = append(t.opcodes, p)
	}
	return t, nil
}

func (fv *fileVariant) variant() *Variant {
	v := &Variant{
		RegAlloc: fv.RegAlloc == nil || *fv.RegAlloc,
		Operands: fv.Operands,
	}
	if fv.Output != nil {
		v.Output = *fv.Output
	}
	if !v.RegAlloc {
		v.Output, v.Operands = 0, nil
	}
	return v
}

func useKindByName(name string) (ir.UseKind, bool) {
	for uk := ir.UseKindKnownCapturedVar; uk < ir.UseKindFirstProven; uk++ {
		if uk.String() == name {
			return uk, true
		}
	}
	return 0, false
}

// CheckHost verifies that the host CPU has every feature the table's
// codegen relies on.
func (t *Table) CheckHost() error {
	for _, name := range t.Features {
		id := cpuid.ParseFeature(name)
		if id == cpuid.UNKNOWN {
			return errors.New("unknown cpu feature %q", name)
		}
		if !cpuid.CPU.Supports(id) {
			return errors.New("cpu feature %s is not supported by %s", name, cpuid.CPU.BrandName)
		}
	}
	return nil
}
