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

package stacklayout

import (
    `encoding/binary`
    `fmt`
)

const (
    _OsrInfoParentOffset = 0
    _OsrInfoFrameBase    = 4
    _OsrInfoFrameStart   = 6
    _OsrInfoFrameLength  = 8
    _OsrInfoValues       = 10
    _OsrInfoAlign        = 4
)

// OsrInfoAllocationLength is the number of bytes taken by the record of a
// frame with n interpreter slots.
func OsrInfoAllocationLength(n int) int {
    return (_OsrInfoValues + n * 2 + _OsrInfoAlign - 1) &^ (_OsrInfoAlign - 1)
}

// OsrInfo is a view of one DfgInlinedCallFrameOsrInfo record inside the data
// block produced by the planner. Every interpreter slot of the frame maps
// either to a physical slot (value >= 0) or to a constant table entry
// (value < 0, counted from the end of the table).
type OsrInfo struct {
    buf []byte
    off int
}

// OsrInfoAt returns the record at byte offset off of the data block.
func OsrInfoAt(buf []byte, off uint32) OsrInfo {
    if int(off) % _OsrInfoAlign != 0 || int(off) + _OsrInfoValues > len(buf) {
        panic(fmt.Sprintf("stacklayout: invalid OSR record offset %d", off))
    }
    return OsrInfo { buf: buf, off: int(off) }
}

func (self OsrInfo) u16(at int) uint16 {
    return binary.LittleEndian.Uint16(self.buf[self.off + at:])
}

func (self OsrInfo) ParentOffset() int32 {
    return int32(binary.LittleEndian.Uint32(self.buf[self.off + _OsrInfoParentOffset:]))
}

func (self OsrInfo) HasParent() bool {
    return self.ParentOffset() != 0
}

func (self OsrInfo) Parent() OsrInfo {
    if !self.HasParent() {
        panic("stacklayout: the root frame has no parent record")
    }
    return OsrInfoAt(self.buf, uint32(self.off + int(self.ParentOffset())))
}

func (self OsrInfo) FrameBaseSlot() uint16   { return self.u16(_OsrInfoFrameBase) }
func (self OsrInfo) FrameStartSlot() uint16  { return self.u16(_OsrInfoFrameStart) }
func (self OsrInfo) FrameFullLength() uint16 { return self.u16(_OsrInfoFrameLength) }

func (self OsrInfo) Value(i int) int16 {
    if i < 0 || i >= int(self.FrameFullLength()) {
        panic(fmt.Sprintf("stacklayout: slot %d out of range", i))
    }
    return int16(self.u16(_OsrInfoValues + i * 2))
}

// InterpreterFramesTotalNumSlots is the length Reconstruct expects of its
// output: every interpreter slot from 0 to the end of this frame.
func (self OsrInfo) InterpreterFramesTotalNumSlots() int {
    return int(self.FrameStartSlot()) + int(self.FrameFullLength())
}

// Reconstruct rebuilds the interpreter frames from this frame up to the root,
// reading physical slots from stack and constants from table (ordinal -k at
// index len(table)-k, see Result.ConstantTableImage). Each parent
// only fills the slots below the start of its child.
func (self OsrInfo) Reconstruct(table []uint64, stack []uint64, out []uint64) {
    cur := self
    start := int(cur.FrameStartSlot())
    end := start + int(cur.FrameFullLength())

    /* the output must cover every slot */
    if len(out) < end {
        panic("stacklayout: output buffer too small")
    }

    /* fill frames from the innermost outwards */
    for {
        for i := 0; i < end - start; i++ {
            if v := cur.Value(i); v < 0 {
                out[start + i] = table[len(table) + int(v)]
            } else {
                out[start + i] = stack[v]
            }
        }
        if start == 0 {
            break
        }
        cur = cur.Parent()
        end, start = start, int(cur.FrameStartSlot())
    }
}

func (self OsrInfo) String() string {
    return fmt.Sprintf(
        "osr{parent=%d, start=%d, base=%d, len=%d}",
        self.ParentOffset(),
        self.FrameStartSlot(),
        self.FrameBaseSlot(),
        self.FrameFullLength(),
    )
}

type _OsrWriter struct {
    buf []byte
    off int
}

func (self _OsrWriter) header(parent int32, start uint32, base uint32, n uint32) {
    binary.LittleEndian.PutUint32(self.buf[self.off + _OsrInfoParentOffset:], uint32(parent))
    binary.LittleEndian.PutUint16(self.buf[self.off + _OsrInfoFrameBase:], checkU16(base))
    binary.LittleEndian.PutUint16(self.buf[self.off + _OsrInfoFrameStart:], checkU16(start))
    binary.LittleEndian.PutUint16(self.buf[self.off + _OsrInfoFrameLength:], checkU16(n))
}

func (self _OsrWriter) value(i int, v int32) {
    if v < -0x8000 || v > 0x7fff {
        panic(fmt.Sprintf("stacklayout: slot value %d does not fit in int16", v))
    }
    binary.LittleEndian.PutUint16(self.buf[self.off + _OsrInfoValues + i * 2:], uint16(int16(v)))
}

func checkU16(v uint32) uint16 {
    if v > 0xffff {
        panic(fmt.Sprintf("stacklayout: interpreter slot %d does not fit in uint16", v))
    }
    return uint16(v)
}
