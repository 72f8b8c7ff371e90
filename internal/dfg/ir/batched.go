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

package ir

const _NoInsertion = -1

type _Insertion struct {
    before int
    node   *Node
}

// BatchedInsertions collects node insertions into one basic block and
// applies them in a single pass. Insertions before the same position keep
// the order they were added in.
type BatchedInsertions struct {
    bb     *BasicBlock
    sorted bool
    items  []_Insertion
    radix  []int
}

func NewBatchedInsertions() *BatchedInsertions {
    return &BatchedInsertions { sorted: true }
}

// Reset targets bb. Pending insertions must be committed or discarded first.
func (self *BatchedInsertions) Reset(bb *BasicBlock) {
    if bb == nil {
        panic("ir: nil basic block")
    }
    if len(self.items) != 0 {
        panic("ir: pending insertions on reset")
    }
    self.bb = bb
    self.sorted = true
}

func (self *BatchedInsertions) Add(insertBefore int, n *Node) {
    if self.bb == nil {
        panic("ir: no target basic block")
    }
    if insertBefore < 0 || insertBefore > len(self.bb.Nodes) {
        panic("ir: insertion position out of range")
    }
    if k := len(self.items); k != 0 && insertBefore < self.items[k - 1].before {
        self.sorted = false
    }
    self.items = append(self.items, _Insertion { insertBefore, n })
}

func (self *BatchedInsertions) NumPending() int {
    return len(self.items)
}

func (self *BatchedInsertions) Commit() {
    if self.bb == nil {
        panic("ir: no target basic block")
    }
    if len(self.items) != 0 {
        if self.sorted {
            self.commitSorted()
        } else {
            self.commitUnsorted()
        }
    }
    self.DiscardAll()
}

func (self *BatchedInsertions) DiscardAll() {
    self.items = self.items[:0]
    self.sorted = true
}

func (self *BatchedInsertions) grow() (int, []*Node) {
    old := len(self.bb.Nodes)
    self.bb.Nodes = append(self.bb.Nodes, make([]*Node, len(self.items))...)
    return old, self.bb.Nodes
}

func (self *BatchedInsertions) commitSorted() {
    oldSize, nodes := self.grow()
    cur, src := len(nodes), oldSize

    /* walk backwards, moving old nodes to their final place */
    for i := len(self.items) - 1; i >= 0; i-- {
        it := self.items[i]
        for src > it.before {
            src--
            cur--
            nodes[cur] = nodes[src]
        }
        cur--
        nodes[cur] = it.node
    }

    /* the prefix is untouched */
    if cur != src {
        panic("ir: batched insertion position mismatch")
    }
}

func (self *BatchedInsertions) commitUnsorted() {
    oldSize := len(self.bb.Nodes)
    if cap(self.radix) < oldSize + 1 {
        self.radix = make([]int, oldSize + 1)
    }
    self.radix = self.radix[:oldSize + 1]
    for i := range self.radix {
        self.radix[i] = _NoInsertion
    }

    /* bucket by position, each bucket a list from its last item backwards */
    for i := range self.items {
        it := &self.items[i]
        tail := &self.radix[it.before]
        it.before, *tail = *tail, i
    }

    _, nodes := self.grow()
    cur := len(nodes)

    /* emit the items of one bucket, last added first */
    emit := func(pos int) {
        for idx := self.radix[pos]; idx != _NoInsertion; idx = self.items[idx].before {
            cur--
            nodes[cur] = self.items[idx].node
        }
    }

    /* walk backwards over the old nodes */
    for idx := oldSize - 1; idx >= 0; idx-- {
        emit(idx + 1)
        cur--
        if cur == idx {
            return
        }
        nodes[cur] = nodes[idx]
    }

    emit(0)
    if cur != 0 {
        panic("ir: batched insertion position mismatch")
    }
}
