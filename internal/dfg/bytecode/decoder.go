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

// UpvalueMetadata describes one upvalue of a function prototype.
type UpvalueMetadata struct {
    IsImmutable   bool
    IsParentLocal bool
    Slot          uint32
}

// CreateClosure is the intrinsic operand of a closure-creation bytecode.
// The prototype is always a compile-time constant, so its upvalue list is
// known statically.
type CreateClosure struct {
    Upvalues []UpvalueMetadata
}

// UpvalueClose is the intrinsic operand of an upvalue-close bytecode: every
// local at or above Start is closed.
type UpvalueClose struct {
    Start uint32
}

// Decoder is the view of one function's bytecode stream the DFG frontend
// needs. Positions are byte offsets into the stream.
type Decoder interface {
    // CurLength is the length of the stream in bytes.
    CurLength() int

    // NumLocals is the number of local slots of the function's frame.
    NumLocals() int

    NextPosition(pos int) int
    IsBarrier(pos int) bool
    HasBranchOperand(pos int) bool
    BranchTarget(pos int) int

    // CreateClosureInfo decodes the bytecode at pos if it creates a closure.
    CreateClosureInfo(pos int) (CreateClosure, bool)

    // UpvalueCloseInfo decodes the bytecode at pos if it closes upvalues.
    UpvalueCloseInfo(pos int) (UpvalueClose, bool)

    // BytecodeIndex maps the offset of a bytecode to its ordinal.
    BytecodeIndex(pos int) int

    // Reads and Writes list the locals the bytecode at pos reads and
    // writes, ranges expanded. A closure creation writes exactly one local,
    // its destination.
    Reads(pos int) []uint32
    Writes(pos int) []uint32
}
