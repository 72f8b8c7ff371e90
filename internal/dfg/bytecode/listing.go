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
    `github.com/BurntSushi/toml`
    `tlog.app/go/errors`
)

type _ListingUpvalue struct {
    Slot        uint32 `toml:"slot"`
    ParentLocal bool   `toml:"parent_local"`
    Immutable   bool   `toml:"immutable"`
}

type _ListingInstr struct {
    Op        string            `toml:"op"`
    Kind      string            `toml:"kind"`
    Length    int               `toml:"length"`
    Target    *int              `toml:"target"`
    CloseFrom uint32            `toml:"close_from"`
    Upvalues  []_ListingUpvalue `toml:"upvalues"`
    Reads     []uint32          `toml:"reads"`
    Writes    []uint32          `toml:"writes"`
}

type _Listing struct {
    Name   string          `toml:"name"`
    Locals int             `toml:"locals"`
    Ins    []_ListingInstr `toml:"ins"`
}

// ParseListing builds a Stream from a TOML listing. Every instruction has
// an op, a kind (op, branch, jump, return, closure or uclose) and a byte
// length; branch targets are instruction indices. The locals an instruction
// reads and writes are listed in reads and writes, and a closure writes
// exactly one local.
func ParseListing(src string) (*Stream, error) {
    var v _Listing
    md, err := toml.Decode(src, &v)
    if err != nil {
        return nil, errors.Wrap(err, "decode listing")
    }
    if keys := md.Undecoded(); len(keys) != 0 {
        return nil, errors.New("unknown listing key: %v", keys[0])
    }
    return v.build()
}

func LoadListing(path string) (*Stream, error) {
    var v _Listing
    md, err := toml.DecodeFile(path, &v)
    if err != nil {
        return nil, errors.Wrap(err, "load listing %v", path)
    }
    if keys := md.Undecoded(); len(keys) != 0 {
        return nil, errors.New("%v: unknown listing key: %v", path, keys[0])
    }
    return v.build()
}

func (self *_Listing) build() (*Stream, error) {
    if self.Locals < 0 {
        return nil, errors.New("negative number of locals")
    }
    b := NewBuilder(self.Name, self.Locals)
    for i, p := range self.Ins {
        if p.Length <= 0 {
            return nil, errors.New("instruction %d: length must be positive", i)
        }
        if p.Kind == "closure" && len(p.Writes) != 1 {
            return nil, errors.New("instruction %d: closure must write exactly one local", i)
        }
        if err := p.emit(b); err != nil {
            return nil, errors.Wrap(err, "instruction %d", i)
        }
        b.Reads(p.Reads...).Writes(p.Writes...)
    }
    return b.Build()
}

func (self *_ListingInstr) target() (Label, error) {
    if self.Target == nil {
        return 0, errors.New("%s: missing branch target", self.Op)
    }
    return Label(*self.Target), nil
}

func (self *_ListingInstr) emit(b *Builder) error {
    switch self.Kind {
        case "", "op" : b.Op(self.Op, self.Length)
        case "return" : b.Return(self.Op, self.Length)
        case "closure": b.CreateClosure(self.Op, self.Length, self.upvalues()...)
        case "branch", "jump", "uclose" : return self.emitBranch(b)
        default       : return errors.New("%s: unknown kind %q", self.Op, self.Kind)
    }
    return nil
}

func (self *_ListingInstr) emitBranch(b *Builder) error {
    to, err := self.target()
    if err != nil {
        return err
    }
    switch self.Kind {
        case "branch" : b.Branch(self.Op, self.Length, to)
        case "jump"   : b.Jump(self.Op, self.Length, to)
        default       : b.UpvalueClose(self.Op, self.Length, self.CloseFrom, to)
    }
    return nil
}

func (self *_ListingInstr) upvalues() []UpvalueMetadata {
    ret := make([]UpvalueMetadata, len(self.Upvalues))
    for i, uv := range self.Upvalues {
        ret[i] = UpvalueMetadata {
            IsImmutable   : uv.Immutable,
            IsParentLocal : uv.ParentLocal,
            Slot          : uv.Slot,
        }
    }
    return ret
}
