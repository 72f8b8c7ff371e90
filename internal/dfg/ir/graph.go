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

import (
    `fmt`

    `github.com/oleiade/lane`
)

// Form is the stage of the graph. It only moves forward, except for the
// single downgrade from BlockLocalSSA back to LoadStore.
type Form uint8

const (
    // FormPreUnification: local accesses have no logical variable yet.
    FormPreUnification Form = iota

    // FormLoadStore: local accesses carry logical variables, no Phis exist.
    FormLoadStore

    // FormBlockLocalSSA: Phis describe every block boundary and GetLocal.
    FormBlockLocalSSA
)

func (self Form) String() string {
    switch self {
        case FormPreUnification : return "PreUnification"
        case FormLoadStore      : return "LoadStore"
        case FormBlockLocalSSA  : return "BlockLocalSSA"
        default                 : return fmt.Sprintf("Form(%d)", uint8(self))
    }
}

const (
    // DefaultFirstLocalPhysicalSlot is the first physical slot available to
    // locals when nothing else is configured.
    DefaultFirstLocalPhysicalSlot = 2
)

// Graph owns every node, block, Phi, frame and logical variable of one
// function compilation. It is not safe for concurrent use.
type Graph struct {
    Blocks         []*BasicBlock
    nodes          []*Node
    phis           []*Phi
    frames         []*InlinedCallFrame
    lvars          []*LogicalVariableInfo
    dsu            DSU
    root           *CodeBlock
    constants      map[uint64]NodeRef
    unboxed        map[uint64]NodeRef
    arguments      []NodeRef
    varArgs        []NodeRef
    liveness       map[*CodeBlock]*BytecodeLiveness
    undef          NodeRef
    fnObj          NodeRef
    numVarArgs     NodeRef
    totalLocals    uint32
    totalSlots     uint32
    firstLocalSlot uint32
    form           Form
    cfgAvailable   bool
}

func NewGraph(root *CodeBlock) *Graph {
    ret := &Graph {
        nodes          : []*Node { nil },
        phis           : []*Phi { nil },
        root           : root,
        constants      : make(map[uint64]NodeRef),
        unboxed        : make(map[uint64]NodeRef),
        liveness       : make(map[*CodeBlock]*BytecodeLiveness),
        totalLocals    : 1,
        firstLocalSlot : DefaultFirstLocalPhysicalSlot,
        form           : FormPreUnification,
    }

    /* root function values */
    ret.undef = ret.newLeaf(KindUndefValue).ref
    ret.fnObj = ret.newLeaf(KindGetFunctionObject).ref

    /* the varargs count is a constant zero without varargs */
    if root.HasVariadicArguments {
        ret.numVarArgs = ret.newLeaf(KindGetNumVariadicArgs).ref
    } else {
        ret.numVarArgs = ret.GetUnboxedConstant(0).Node
    }
    return ret
}

func (self *Graph) RootCodeBlock() *CodeBlock { return self.root }

/** Node arena **/

func (self *Graph) newNode(kind NodeKind) *Node {
    ret := &Node {
        g    : self,
        ref  : NodeRef(len(self.nodes)),
        kind : kind,
        nin  : -1,
    }
    self.nodes = append(self.nodes, ret)
    return ret
}

func (self *Graph) Node(ref NodeRef) *Node {
    if ref == 0 || int(ref) >= len(self.nodes) {
        panic(fmt.Sprintf("ir: invalid node reference %d", ref))
    }
    return self.nodes[ref]
}

func (self *Graph) NumNodes() int {
    return len(self.nodes) - 1
}

func (self *Graph) ForEachConstantLikeNode(fn func(*Node)) {
    for _, n := range self.nodes[1:] {
        if n.IsConstantLike() {
            fn(n)
        }
    }
}

// NewEdge builds an edge to v, checking that the output exists.
func (self *Graph) NewEdge(v Value, uk UseKind, staticallyProven bool) Edge {
    if !self.Node(v.Node).IsOutputOrdValid(v.Output) {
        panic(fmt.Sprintf("ir: %s is not a valid output", v))
    }
    ret := Edge { operand: v.Node, output: v.Output, useKind: uk }
    ret.SetStaticallyProven(staticallyProven)
    return ret
}

/** Forms **/

func (self *Graph) Form() Form                 { return self.form }
func (self *Graph) IsPreUnificationForm() bool { return self.form == FormPreUnification }
func (self *Graph) IsLoadStoreForm() bool      { return self.form == FormLoadStore }
func (self *Graph) IsBlockLocalSSAForm() bool  { return self.form == FormBlockLocalSSA }

func (self *Graph) UpgradeToLoadStoreForm() {
    if self.form != FormPreUnification {
        panic("ir: only a pre-unification graph can become load-store")
    }
    self.form = FormLoadStore
}

func (self *Graph) UpgradeToBlockLocalSSAForm() {
    self.form = FormBlockLocalSSA
}

func (self *Graph) DegradeToLoadStoreForm() {
    if self.form != FormBlockLocalSSA {
        panic("ir: only a block-local SSA graph can be degraded")
    }
    self.form = FormLoadStore
}

/** Deduplicated constant-like nodes **/

func (self *Graph) cached(m map[uint64]NodeRef, kind NodeKind, v uint64) Value {
    ref, ok := m[v]
    if !ok {
        n := self.newLeaf(kind)
        n.SetParamAsUInt64(v)
        ref = n.ref
        m[v] = ref
    }
    return Value { ref, 0 }
}

// GetConstant returns the boxed constant with bit pattern v.
func (self *Graph) GetConstant(v uint64) Value {
    return self.cached(self.constants, KindConstant, v)
}

func (self *Graph) GetUnboxedConstant(v uint64) Value {
    return self.cached(self.unboxed, KindUnboxedConstant, v)
}

func (self *Graph) cachedSlice(s *[]NodeRef, kind NodeKind, k uint32) Value {
    for uint32(len(*s)) <= k {
        *s = append(*s, 0)
    }
    if (*s)[k] == 0 {
        n := self.newLeaf(kind)
        n.SetParamAsUInt64(uint64(k))
        (*s)[k] = n.ref
    }
    return Value { (*s)[k], 0 }
}

func (self *Graph) GetArgumentNode(k uint32) Value {
    return self.cachedSlice(&self.arguments, KindArgument, k)
}

func (self *Graph) GetRootFunctionVariadicArg(k uint32) Value {
    return self.cachedSlice(&self.varArgs, KindGetKthVariadicArg, k)
}

func (self *Graph) GetUndefValue() Value             { return Value { self.undef, 0 } }
func (self *Graph) GetRootFunctionObject() Value     { return Value { self.fnObj, 0 } }
func (self *Graph) GetRootFunctionNumVarArgs() Value { return Value { self.numVarArgs, 0 } }

/** Inlined call frames **/

// RegisterNewInlinedCallFrame assigns frame the next ordinal. Frames must be
// registered after their parents, the root first.
func (self *Graph) RegisterNewInlinedCallFrame(frame *InlinedCallFrame) {
    if (len(self.frames) == 0) != frame.IsRootFrame() {
        panic("ir: the root frame must be registered first, and only once")
    }
    frame.setOrdinal(uint32(len(self.frames)))
    self.frames = append(self.frames, frame)
    self.UpdateTotalNumLocals(frame.InterpreterSlotForFrameEnd().Value())
    self.UpdateTotalNumInterpreterSlots(frame.InterpreterSlotForFrameEnd().Value())
}

func (self *Graph) NumInlinedCallFrames() int {
    return len(self.frames)
}

func (self *Graph) InlinedCallFrame(ord int) *InlinedCallFrame {
    return self.frames[ord]
}

func (self *Graph) RootFrame() *InlinedCallFrame {
    if len(self.frames) == 0 {
        panic("ir: no frame is registered")
    }
    return self.frames[0]
}

// SetBytecodeLiveness caches the liveness of cb, so that every frame
// inlining cb shares it.
func (self *Graph) SetBytecodeLiveness(cb *CodeBlock, v *BytecodeLiveness) {
    self.liveness[cb] = v
}

func (self *Graph) RegisterBytecodeLivenessInfo(frame *InlinedCallFrame) {
    if v, ok := self.liveness[frame.CodeBlock()]; !ok {
        panic("ir: no bytecode liveness for " + frame.CodeBlock().Name)
    } else {
        frame.SetBytecodeLiveness(v)
    }
}

/** Phis **/

func (self *Graph) AllocatePhi(numIncoming int, bb *BasicBlock, localOrd uint32, payload PhiPayload) *Phi {
    if payload == nil {
        panic("ir: Phi requires a payload")
    }
    ret := &Phi {
        ref      : PhiRef(len(self.phis)),
        block    : bb,
        localOrd : localOrd,
        incoming : make([]PhiOrNode, numIncoming),
        payload  : payload,
    }
    self.phis = append(self.phis, ret)
    return ret
}

func (self *Graph) Phi(ref PhiRef) *Phi {
    if ref == 0 || int(ref) >= len(self.phis) {
        panic(fmt.Sprintf("ir: invalid Phi reference %d", ref))
    }
    return self.phis[ref]
}

func (self *Graph) NumPhis() int {
    return len(self.phis) - 1
}

// FreeMemoryForAllPhi drops the whole Phi arena; every PhiRef is invalid
// afterwards.
func (self *Graph) FreeMemoryForAllPhi() {
    for i := range self.phis {
        self.phis[i] = nil
    }
    self.phis = self.phis[:1]
}

/** Totals **/

func (self *Graph) UpdateTotalNumLocals(n uint32) {
    if n > self.totalLocals {
        self.totalLocals = n
    }
}

func (self *Graph) UpdateTotalNumInterpreterSlots(n uint32) {
    if n > self.totalSlots {
        self.totalSlots = n
    }
}

func (self *Graph) TotalNumLocals() uint32           { return self.totalLocals }
func (self *Graph) TotalNumInterpreterSlots() uint32 { return self.totalSlots }

func (self *Graph) FirstLocalPhysicalSlot() uint32 {
    return self.firstLocalSlot
}

func (self *Graph) SetFirstLocalPhysicalSlot(v uint32) {
    if v < 2 {
        panic("ir: the first two physical slots are reserved")
    }
    self.firstLocalSlot = v
}

/** Logical variables **/

func (self *Graph) RegisterLogicalVariable(v *LogicalVariableInfo) {
    v.setOrdinal(uint32(len(self.lvars)))
    self.lvars = append(self.lvars, v)
}

func (self *Graph) AllLogicalVariables() []*LogicalVariableInfo {
    return self.lvars
}

// MergeLogicalVariableInfo records that a and b access the same logical
// variable. Both must access the same location of the same frame.
func (self *Graph) MergeLogicalVariableInfo(a *Node, b *Node) {
    if !a.isLocalConsistentWith(b) {
        panic(fmt.Sprintf("ir: %%%d and %%%d access different locals", a.ref, b.ref))
    }
    ra, rb := self.dsu.Find(a.ref), self.dsu.Find(b.ref)
    if ra != rb {
        self.dsu.Attach(ra, rb)
    }
}

// SetupLogicalVariableInfoAfterDsuMerge gives n the logical variable of its
// union-find root, creating and registering it on first use.
func (self *Graph) SetupLogicalVariableInfoAfterDsuMerge(n *Node) {
    la := n.localAccess()
    if la.lvi != nil {
        return
    }

    /* the root owns the shared info */
    root := self.Node(self.dsu.Find(n.ref))
    rla := root.localAccess()
    if rla.lvi == nil {
        if !n.isLocalConsistentWith(root) {
            panic("ir: union-find merged different locals")
        }
        lvi := newLogicalVariableInfo(root.LocalVirtualRegister(), root.LocalInterpreterSlot())
        self.RegisterLogicalVariable(lvi)
        rla.lvi = lvi
    }

    /* children share it */
    if root != n {
        la.lvi = rla.lvi
    }
    if la.lvi.vreg != n.LocalVirtualRegister() || la.lvi.islot != n.LocalInterpreterSlot() {
        panic("ir: logical variable disagrees with its access")
    }
}

// LocalAccessRoot is the union-find root of a GetLocal or SetLocal.
func (self *Graph) LocalAccessRoot(n *Node) *Node {
    n.localAccess()
    return self.Node(self.dsu.Find(n.ref))
}

/** Replacement **/

func (self *Graph) ClearAllReplacements() {
    for _, bb := range self.Blocks {
        for _, n := range bb.Nodes {
            n.ClearReplacement()
        }
    }
}

func (self *Graph) ClearAllReplacementsAndIsReferencedBit() {
    for _, bb := range self.Blocks {
        for _, n := range bb.Nodes {
            n.ClearReplacement()
            n.flags.SetReferenced(false)
        }
    }
}

// AssertReplacementIsComplete panics if any node still uses a value that
// is marked for replacement.
func (self *Graph) AssertReplacementIsComplete() {
    for _, bb := range self.Blocks {
        for _, n := range bb.Nodes {
            n.ForEachInputEdge(func(e *Edge) {
                op := self.Node(e.operand)
                if !op.replacement.IsNil() {
                    panic(fmt.Sprintf("ir: %%%d still uses replaced %%%d", n.ref, e.operand))
                }
                if !op.IsOutputOrdValid(e.output) {
                    panic(fmt.Sprintf("ir: %%%d uses an invalid output of %%%d", n.ref, e.operand))
                }
            })
        }
    }
}

/** Control flow graph **/

func (self *Graph) NewBasicBlock() *BasicBlock {
    ret := &BasicBlock {
        g                          : self,
        Id                         : len(self.Blocks),
        numSucc                    : -1,
        InPlaceCallRcFrameLocalOrd : _NoInPlaceCallRcFrame,
    }
    self.Blocks = append(self.Blocks, ret)
    self.cfgAvailable = false
    return ret
}

func (self *Graph) EntryBlock() *BasicBlock {
    if len(self.Blocks) == 0 {
        panic("ir: graph has no blocks")
    }
    return self.Blocks[0]
}

func (self *Graph) IsCfgAvailable() bool { return self.cfgAvailable }
func (self *Graph) InvalidateCfg()       { self.cfgAvailable = false }

// ComputeReachabilityAndPredecessors recomputes the reachable bits and the
// predecessor lists. Unreachable blocks end up with no predecessors.
func (self *Graph) ComputeReachabilityAndPredecessors() {
    entry := self.EntryBlock()
    for _, bb := range self.Blocks {
        bb.reachable = false
        bb.Predecessors = bb.Predecessors[:0]
    }

    /* depth-first walk from the entry */
    st := lane.NewStack()
    entry.reachable = true
    for st.Push(entry); !st.Empty(); {
        bb := st.Pop().(*BasicBlock)
        for i := 0; i < bb.NumSuccessors(); i++ {
            if succ := bb.successors[i]; !succ.reachable {
                succ.reachable = true
                st.Push(succ)
            }
        }
    }

    /* predecessor lists, one entry per distinct edge */
    for _, bb := range self.Blocks {
        if !bb.reachable {
            continue
        }
        for i := 0; i < bb.NumSuccessors(); i++ {
            succ := bb.successors[i]
            if i == 1 && succ == bb.successors[0] {
                bb.predOrd[1] = bb.predOrd[0]
                continue
            }
            bb.predOrd[i] = uint32(len(succ.Predecessors))
            succ.Predecessors = append(succ.Predecessors, bb)
        }
    }
    self.cfgAvailable = true
}

// CheckCfgConsistent verifies that successor and predecessor lists agree.
func (self *Graph) CheckCfgConsistent() error {
    all := make(map[*BasicBlock]bool, len(self.Blocks))
    for _, bb := range self.Blocks {
        if all[bb] {
            return fmt.Errorf("%s is listed twice", bb)
        }
        all[bb] = true
    }
    for _, bb := range self.Blocks {
        for i := 0; i < bb.NumSuccessors(); i++ {
            succ := bb.successors[i]
            switch {
                case !all[succ]                                       : return fmt.Errorf("%s: successor %d is not in the graph", bb, i)
                case succ == self.Blocks[0]                           : return fmt.Errorf("%s: branches to the entry block", bb)
                case int(bb.predOrd[i]) >= len(succ.Predecessors)     : return fmt.Errorf("%s: predecessor ordinal out of range", bb)
                case succ.Predecessors[bb.predOrd[i]] != bb           : return fmt.Errorf("%s: predecessor ordinal mismatch", bb)
            }
        }
        for i, pred := range bb.Predecessors {
            if !all[pred] {
                return fmt.Errorf("%s: predecessor %d is not in the graph", bb, i)
            }
            found := false
            for j := 0; j < pred.NumSuccessors(); j++ {
                found = found || pred.successors[j] == bb
            }
            if !found {
                return fmt.Errorf("%s: %s is not a predecessor", bb, pred)
            }
            for _, other := range bb.Predecessors[:i] {
                if other == pred {
                    return fmt.Errorf("%s: duplicated predecessor %s", bb, pred)
                }
            }
        }
    }
    return nil
}

// RemoveTriviallyUnreachableBlocks drops blocks that are not reachable from
// the entry. Requires up-to-date reachability.
func (self *Graph) RemoveTriviallyUnreachableBlocks() {
    if !self.cfgAvailable {
        panic("ir: reachability is stale")
    }
    if !self.EntryBlock().reachable {
        panic("ir: entry block is unreachable")
    }
    blocks := self.Blocks[:0]
    for _, bb := range self.Blocks {
        if bb.reachable {
            blocks = append(blocks, bb)
        }
    }
    for i := len(blocks); i < len(self.Blocks); i++ {
        self.Blocks[i] = nil
    }
    self.Blocks = blocks
}
