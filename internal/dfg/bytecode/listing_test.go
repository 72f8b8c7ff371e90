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

package bytecode

import (
    `os`
    `path/filepath`
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

const _TestListing = `
name = "loop"
locals = 3

[[ins]]
op = "kset"
length = 4
writes = [0]

[[ins]]
op = "fnew"
kind = "closure"
length = 4
writes = [2]
[[ins.upvalues]]
slot = 1
parent_local = true

[[ins]]
op = "istc"
kind = "branch"
length = 2
target = 0
reads = [0]

[[ins]]
op = "uclo"
kind = "uclose"
length = 2
close_from = 1
target = 4

[[ins]]
op = "ret0"
kind = "return"
length = 2
`

func TestListing_Parse(t *testing.T) {
    s, err := ParseListing(_TestListing)
    require.NoError(t, err)
    require.Equal(t, "loop", s.Name)
    require.Equal(t, 3, s.NumLocals())
    require.Equal(t, 14, s.CurLength())

    assert.Equal(t, 4, s.NextPosition(0))
    assert.True(t, s.HasBranchOperand(8))
    assert.False(t, s.IsBarrier(8))
    assert.Equal(t, 0, s.BranchTarget(8))
    assert.Equal(t, 12, s.BranchTarget(10))
    assert.Equal(t, 3, s.BytecodeIndex(10))

    cc, ok := s.CreateClosureInfo(4)
    require.True(t, ok)
    assert.Equal(t, []UpvalueMetadata {{ IsParentLocal: true, Slot: 1 }}, cc.Upvalues)
    _, ok = s.CreateClosureInfo(0)
    assert.False(t, ok)

    assert.Equal(t, []uint32 { 0 }, s.Writes(0))
    assert.Equal(t, []uint32 { 2 }, s.Writes(4))
    assert.Equal(t, []uint32 { 0 }, s.Reads(8))
    assert.Empty(t, s.Reads(12))

    uc, ok := s.UpvalueCloseInfo(10)
    require.True(t, ok)
    assert.Equal(t, uint32(1), uc.Start)
    assert.True(t, s.IsBarrier(12))
    require.Panics(t, func() { s.BytecodeIndex(1) })
    require.Panics(t, func() { s.BranchTarget(0) })
}

func TestListing_Errors(t *testing.T) {
    _, err := ParseListing("name = 1")
    require.Error(t, err)
    _, err = ParseListing("bogus = 1")
    require.Error(t, err)
    _, err = ParseListing("[[ins]]\nop = \"j\"\nkind = \"jump\"\nlength = 1\n")
    require.Error(t, err)
    _, err = ParseListing("[[ins]]\nop = \"j\"\nkind = \"jump\"\nlength = 1\ntarget = 7\n")
    require.Error(t, err)
    _, err = ParseListing("[[ins]]\nop = \"x\"\nkind = \"what\"\nlength = 1\n")
    require.Error(t, err)
    _, err = ParseListing("[[ins]]\nop = \"x\"\n")
    require.Error(t, err)
    _, err = ParseListing("")
    require.Error(t, err)
    _, err = ParseListing("locals = 1\n[[ins]]\nop = \"fnew\"\nkind = \"closure\"\nlength = 1\n")
    require.Error(t, err)
    _, err = ParseListing("locals = 1\n[[ins]]\nop = \"mov\"\nlength = 1\nreads = [1]\n")
    require.Error(t, err)
}

func TestBuilder_Operands(t *testing.T) {
    b := NewBuilder("ops", 4)
    b.Op("call", 4).ReadRange(1, 3).WriteRange(0, 2).Return("ret", 2).Reads(0)
    s, err := b.Build()
    require.NoError(t, err)
    assert.Equal(t, []uint32 { 1, 2, 3 }, s.Reads(0))
    assert.Equal(t, []uint32 { 0, 1 }, s.Writes(0))
    assert.Equal(t, []uint32 { 0 }, s.Reads(4))
    require.Panics(t, func() { NewBuilder("empty", 1).Reads(0) })
    _, err = NewBuilder("oob", 1).Op("mov", 1).Writes(1).Build()
    require.Error(t, err)
}

func TestListing_LoadFile(t *testing.T) {
    fn := filepath.Join(t.TempDir(), "f.toml")
    require.NoError(t, os.WriteFile(fn, []byte(_TestListing), 0644))
    s, err := LoadListing(fn)
    require.NoError(t, err)
    require.Len(t, s.Ins, 5)
    _, err = LoadListing(filepath.Join(t.TempDir(), "missing.toml"))
    require.Error(t, err)
}
