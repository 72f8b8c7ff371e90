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

// DSU is a union-find over node references. Unions attach one root
// directly under the other, and lookups compress paths.
type DSU struct {
    parent []NodeRef
}

func (self *DSU) grow(n NodeRef) {
    for NodeRef(len(self.parent)) <= n {
        self.parent = append(self.parent, 0)
    }
}

// MakeSet adds n as a singleton set.
func (self *DSU) MakeSet(n NodeRef) {
    if n == 0 {
        panic("ir: nil node in union-find")
    }
    self.grow(n)
    self.parent[n] = n
}

func (self *DSU) Contains(n NodeRef) bool {
    return int(n) < len(self.parent) && self.parent[n] != 0
}

func (self *DSU) Find(n NodeRef) NodeRef {
    if !self.Contains(n) {
        panic("ir: node is not in the union-find")
    }

    /* find the root */
    root := n
    for self.parent[root] != root {
        root = self.parent[root]
    }

    /* compress the path */
    for n != root {
        next := self.parent[n]
        self.parent[n] = root
        n = next
    }
    return root
}

// Attach makes root b the parent of root a.
func (self *DSU) Attach(a NodeRef, b NodeRef) {
    if self.parent[a] != a || self.parent[b] != b {
        panic("ir: only roots can be attached")
    }
    self.parent[a] = b
}

func (self *DSU) IsRoot(n NodeRef) bool {
    return self.Find(n) == n
}
