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
    `fmt`
    `sort`
)

// Instr is one decoded bytecode.
type Instr struct {
    Op      string
    Offset  int
    Length  int
    Barrier bool
    Branch  bool
    Target  int
    Closure *CreateClosure
    Close   *UpvalueClose
    Uses    []uint32
    Defs    []uint32
}

func (self *Instr) String() string {
    switch {
        case self.Branch : return fmt.Sprintf("%06x | %s -> %06x", self.Offset, self.Op, self.Target)
        default          : return fmt.Sprintf("%06x | %s", self.Offset, self.Op)
    }
}

// Stream is an already decoded bytecode stream.
type Stream struct {
    Name   string
    Locals int
    Ins    []*Instr
    size   int
}

func (self *Stream) CurLength() int { return self.size }
func (self *Stream) NumLocals() int { return self.Locals }

func (self *Stream) BytecodeIndex(pos int) int {
    idx := sort.Search(len(self.Ins), func(i int) bool { return self.Ins[i].Offset >= pos })
    if idx == len(self.Ins) || self.Ins[idx].Offset != pos {
        panic(fmt.Sprintf("bytecode: %#x is not a bytecode boundary", pos))
    }
    return idx
}

func (self *Stream) At(pos int) *Instr {
    return self.Ins[self.BytecodeIndex(pos)]
}

func (self *Stream) NextPosition(pos int) int {
    p := self.At(pos)
    return p.Offset + p.Length
}

func (self *Stream) IsBarrier(pos int) bool        { return self.At(pos).Barrier }
func (self *Stream) HasBranchOperand(pos int) bool { return self.At(pos).Branch }

func (self *Stream) BranchTarget(pos int) int {
    if p := self.At(pos); !p.Branch {
        panic(fmt.Sprintf("bytecode: %#x has no branch operand", pos))
    } else {
        return p.Target
    }
}

func (self *Stream) CreateClosureInfo(pos int) (CreateClosure, bool) {
    if p := self.At(pos); p.Closure == nil {
        return CreateClosure{}, false
    } else {
        return *p.Closure, true
    }
}

func (self *Stream) UpvalueCloseInfo(pos int) (UpvalueClose, bool) {
    if p := self.At(pos); p.Close == nil {
        return UpvalueClose{}, false
    } else {
        return *p.Close, true
    }
}

func (self *Stream) Reads(pos int) []uint32  { return self.At(pos).Uses }
func (self *Stream) Writes(pos int) []uint32 { return self.At(pos).Defs }

func (self *Stream) String() string {
    ret := fmt.Sprintf("%s (%d locals):", self.Name, self.Locals)
    for _, p := range self.Ins {
        ret += "\n    " + p.String()
    }
    return ret
}
