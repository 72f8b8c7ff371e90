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
package regbank

import (
    `github.com/cloudwego/dfg/internal/dfg/ir`
)

type _State uint8

const (
    _Undecided _State = iota
    _InFPR
    _InGPR
    _InGPRAndFPR
)

func mandate(gpr bool) _State {
    if gpr {
        return _InGPR
    } else {
        return _InFPR
    }
}

func vote(gpr bool) int16 {
    if gpr {
        return 1
    } else {
        return -1
    }
}

// _Site is a place waiting for the bank decision of a value: either the
// direct output of its defining node or one of its uses.
type _Site struct {
    node *ir.Node
    edge *ir.Edge
}

func (self _Site) patch(gpr bool) {
    if self.node != nil {
        self.node.SetOutputRegisterBankDecision(gpr)
    } else {
        self.edge.SetShouldUseGPR(gpr)
    }
}

// _Info tracks where one SSA value is available. A record whose epoch
// differs from the current one is logically undecided with no sites.
type _Info struct {
    epoch uint32
    state _State
    pref  int16
    sites []_Site
}

func (self *_Info) reset(epoch uint32, site _Site, gpr bool) {
    self.epoch = epoch
    self.state = _Undecided
    self.pref  = vote(gpr)
    self.sites = append(self.sites[:0], site)
}

func (self *_Info) patchAll(gpr bool) {
    for _, s := range self.sites {
        s.patch(gpr)
    }
    self.sites = self.sites[:0]
}

func (self *_Info) undecidedOutput(ctx *_Context, n *ir.Node, gpr bool) {
    if self.epoch == ctx.epoch {
        panic("regbank: output of " + n.String() + " is seen twice")
    }
    self.reset(ctx.epoch, _Site { node: n }, gpr)
    ctx.pending = append(ctx.pending, self)
}

func (self *_Info) undecidedUse(ctx *_Context, e *ir.Edge, gpr bool) {
    switch {
        case self.epoch != ctx.epoch: {
            self.reset(ctx.epoch, _Site { edge: e }, gpr)
            ctx.pending = append(ctx.pending, self)
        }
        case self.state == _Undecided: {
            self.pref += vote(gpr)
            self.sites = append(self.sites, _Site { edge: e })
        }
        default: {
            e.SetShouldUseGPR(self.state == _InGPR || (self.state == _InGPRAndFPR && gpr))
        }
    }
}

func (self *_Info) mandatory(ctx *_Context, gpr bool) {
    switch {
        case self.epoch != ctx.epoch: {
            self.epoch = ctx.epoch
            self.state = mandate(gpr)
            self.sites = self.sites[:0]
        }
        case self.state == _Undecided: {
            self.state = mandate(gpr)
            self.patchAll(gpr)
        }
        default: {
            self.state |= mandate(gpr)
        }
    }
}

func (self *_Info) finalize(epoch uint32) {
    if self.epoch != epoch {
        panic("regbank: finalizing a stale record")
    }
    if self.state == _Undecided {
        self.patchAll(self.pref >= 0)
    }
}
