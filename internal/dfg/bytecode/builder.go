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
    `tlog.app/go/errors`
)

// Label is an instruction index used as a branch target before offsets
// are known.
type Label int

type _Fixup struct {
    ins   *Instr
    label Label
}

// Builder assembles a Stream. Branch targets refer to instruction indices
// and are resolved to offsets by Build.
type Builder struct {
    name   string
    locals int
    ins    []*Instr
    fixups []_Fixup
    pc     int
}

func NewBuilder(name string, numLocals int) *Builder {
    return &Builder {
        name   : name,
        locals : numLocals,
    }
}

// Next is the label of the next instruction to be emitted.
func (self *Builder) Next() Label {
    return Label(len(self.ins))
}

func (self *Builder) emit(op string, length int) *Instr {
    if length <= 0 {
        panic("bytecode: instruction length must be positive")
    }
    p := &Instr { Op: op, Offset: self.pc, Length: length }
    self.pc += length
    self.ins = append(self.ins, p)
    return p
}

// Op emits a straight-line instruction.
func (self *Builder) Op(op string, length int) *Builder {
    self.emit(op, length)
    return self
}

// Jump emits an unconditional branch, a barrier with a branch operand.
func (self *Builder) Jump(op string, length int, target Label) *Builder {
    p := self.emit(op, length)
    p.Barrier, p.Branch = true, true
    self.fixups = append(self.fixups, _Fixup { p, target })
    return self
}

// Branch emits a conditional branch that may also fall through.
func (self *Builder) Branch(op string, length int, target Label) *Builder {
    p := self.emit(op, length)
    p.Branch = true
    self.fixups = append(self.fixups, _Fixup { p, target })
    return self
}

// Return emits a barrier without successors. Returning closes every open
// upvalue of the frame.
func (self *Builder) Return(op string, length int) *Builder {
    p := self.emit(op, length)
    p.Barrier = true
    p.Close = &UpvalueClose { Start: 0 }
    return self
}

func (self *Builder) CreateClosure(op string, length int, upvalues ...UpvalueMetadata) *Builder {
    self.emit(op, length).Closure = &CreateClosure { Upvalues: upvalues }
    return self
}

// Reads appends to the locals the last emitted instruction reads.
func (self *Builder) Reads(locals ...uint32) *Builder {
    p := self.last()
    p.Uses = append(p.Uses, locals...)
    return self
}

// Writes appends to the locals the last emitted instruction writes.
func (self *Builder) Writes(locals ...uint32) *Builder {
    p := self.last()
    p.Defs = append(p.Defs, locals...)
    return self
}

// ReadRange is Reads of the n locals starting from start.
func (self *Builder) ReadRange(start uint32, n uint32) *Builder {
    for i := uint32(0); i < n; i++ {
        self.Reads(start + i)
    }
    return self
}

// WriteRange is Writes of the n locals starting from start.
func (self *Builder) WriteRange(start uint32, n uint32) *Builder {
    for i := uint32(0); i < n; i++ {
        self.Writes(start + i)
    }
    return self
}

func (self *Builder) last() *Instr {
    if len(self.ins) == 0 {
        panic("bytecode: no instruction is emitted")
    }
    return self.ins[len(self.ins) - 1]
}

// UpvalueClose emits an upvalue-close of every local from start onwards,
// branching to target.
func (self *Builder) UpvalueClose(op string, length int, start uint32, target Label) *Builder {
    p := self.emit(op, length)
    p.Close = &UpvalueClose { Start: start }
    p.Barrier, p.Branch = true, true
    self.fixups = append(self.fixups, _Fixup { p, target })
    return self
}

// Build resolves branch targets. Every label must name an emitted
// instruction.
func (self *Builder) Build() (*Stream, error) {
    if len(self.ins) == 0 {
        return nil, errors.New("%s: empty stream", self.name)
    }
    for _, p := range self.ins {
        if err := self.checkOperands(p); err != nil {
            return nil, err
        }
    }
    for _, f := range self.fixups {
        if f.label < 0 || int(f.label) >= len(self.ins) {
            return nil, errors.New("%s: branch target %d out of range", self.name, f.label)
        }
        f.ins.Target = self.ins[f.label].Offset
    }
    return &Stream {
        Name   : self.name,
        Locals : self.locals,
        Ins    : self.ins,
        size   : self.pc,
    }, nil
}

func (self *Builder) checkOperands(p *Instr) error {
    for _, v := range p.Uses {
        if int(v) >= self.locals {
            return errors.New("%s: %s at %#x reads local %d out of range", self.name, p.Op, p.Offset, v)
        }
    }
    for _, v := range p.Defs {
        if int(v) >= self.locals {
            return errors.New("%s: %s at %#x writes local %d out of range", self.name, p.Op, p.Offset, v)
        }
    }
    return nil
}
