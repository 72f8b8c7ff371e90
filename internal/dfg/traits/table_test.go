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
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/cpuid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/dfg/internal/dfg/ir"
)

func TestBankPref_Parse(t *testing.T) {
	for _, s := range []string{"gpr", "fpr", "any:gpr", "any:fpr"} {
		p, err := ParseBankPref(s)
		require.NoError(t, err)
		assert.Equal(t, s, p.String())
		assert.True(t, p.Valid())
	}
	p, err := ParseBankPref("any")
	require.NoError(t, err)
	assert.Equal(t, AnyPreferGPR, p)
	_, err = ParseBankPref("xmm")
	require.Error(t, err)

	assert.True(t, MustGPR.Allows(true))
	assert.False(t, MustGPR.Allows(false))
	assert.False(t, MustFPR.HasChoices())
	assert.True(t, AnyPreferFPR.HasChoices())
	assert.False(t, AnyPreferFPR.GprPreferred())
	assert.True(t, AnyPreferGPR.GprPreferred())
	assert.False(t, BankPref(0).Valid())
}

func TestTable_Default(t *testing.T) {
	tab := Default()
	require.Same(t, tab, Default())
	for _, k := range RegAllocBuiltinKinds {
		v := tab.Builtin(k)
		require.NotNil(t, v, k.String())
		assert.True(t, v.IsRegAllocEnabled())
	}
	assert.Nil(t, tab.Builtin(ir.KindReturn))
	assert.True(t, tab.Builtin(ir.KindGetLocal).HasOutput())
	assert.False(t, tab.Builtin(ir.KindSetLocal).HasOutput())
	assert.Equal(t, 2, tab.Builtin(ir.KindSetUpvalue).NumOperandsForRA())
	assert.True(t, tab.TypeCheckUsesGPR(ir.UseKindKnownCapturedVar))
	require.Panics(t, func() { tab.TypeCheckUsesGPR(ir.UseKindFirstProven) })

	op, ok := tab.OpcodeByName("Add")
	require.True(t, ok)
	assert.Equal(t, uint16(0), op)
	assert.Equal(t, 2, tab.Opcode(op).FixedOperands)
	assert.False(t, tab.GuestVariant(op, 2).IsRegAllocEnabled())
	assert.Equal(t, MustFPR, tab.GuestVariant(op, 1).Operand(0))
	require.Panics(t, func() { tab.GuestVariant(op, 3) })
	require.Panics(t, func() { tab.Opcode(uint16(tab.NumOpcodes())) })
	op, ok = tab.OpcodeByName("Call")
	require.True(t, ok)
	assert.True(t, tab.Opcode(op).RangeOperand)
	_, ok = tab.OpcodeByName("Nope")
	assert.False(t, ok)
	assert.Contains(t, tab.String(), "TableGet")
	require.NoError(t, tab.CheckHost())
}

const minimalTable = `
guest_use_kinds = ["fpr"]

[use_kind]
KnownCapturedVar = "gpr"
KnownUnboxedInt64 = "gpr"
Unreachable = "gpr"
AlwaysOsrExit = "fpr"

[builtin.GetLocal]
output = "any:fpr"
[builtin.SetLocal]
operands = ["any:fpr"]
[builtin.CreateCapturedVar]
output = "gpr"
operands = ["any:fpr"]
[builtin.GetCapturedVar]
output = "any:fpr"
operands = ["gpr"]
[builtin.SetCapturedVar]
operands = ["gpr", "any:fpr"]
[builtin.GetKthVariadicRes]
output = "any:fpr"
[builtin.GetNumVariadicRes]
output = "gpr"
[builtin.CheckU64InBound]
operands = ["gpr"]
[builtin.U64SaturateSub]
output = "gpr"
operands = ["gpr"]
[builtin.GetUpvalue]
output = "any:fpr"
operands = ["gpr"]
[builtin.SetUpvalue]
operands = ["gpr", "any:fpr"]
`

func TestTable_Parse(t *testing.T) {
	tab, err := Parse(minimalTable)
	require.NoError(t, err)
	assert.False(t, tab.TypeCheckUsesGPR(ir.UseKindFirstProven))
	assert.False(t, tab.TypeCheckUsesGPR(ir.UseKindAlwaysOsrExit))
	assert.Equal(t, 0, tab.NumOpcodes())

	bad := []string{
		minimalTable + "\nbogus = 1\n",
		minimalTable + "\n[builtin.Return]\n",
		minimalTable + "\n[[opcode]]\nname = \"X\"\nfixed_operands = 1\n[[opcode.variant]]\noperands = []\n",
		minimalTable + "\n[[opcode]]\nname = \"X\"\nfixed_operands = 1\n",
		minimalTable + "\n[[opcode]]\nname = \"X\"\n[[opcode.variant]]\noutput = \"zmm\"\n",
		"[use_kind]\nKnownCapturedVar = \"gpr\"\n",
		"[use_kind]\nWhatever = \"gpr\"\n",
		"[use_kind]\nKnownCapturedVar = \"any:gpr\"\n",
	}
	for _, src := range bad {
		_, err := Parse(src)
		require.Error(t, err, src)
	}
}

func TestTable_Load(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "traits.toml")
	require.NoError(t, os.WriteFile(fn, []byte(defaultTable), 0644))
	tab, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, Default().NumOpcodes(), tab.NumOpcodes())
	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestTable_CheckHost(t *testing.T) {
	tab := &Table{Features: []string{"NOT_A_FEATURE"}}
	require.Error(t, tab.CheckHost())
	if fs := cpuid.CPU.FeatureSet(); len(fs) != 0 {
		tab.Features = fs[:1]
		require.NoError(t, tab.CheckHost())
	}
}
