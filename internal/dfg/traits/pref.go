/*
 * Copyright 2022 CloudWeGo Authors
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

package traits

import (
	"fmt"
)

// BankPref describes which register banks an operand or output may live in,
// and which one is preferred when both are legal.
type BankPref uint8

const (
	prefValid BankPref = 1 << iota
	prefGPR
	prefFPR
	prefGPRFirst
)

const (
	MustGPR      = prefValid | prefGPR
	MustFPR      = prefValid | prefFPR
	AnyPreferGPR = prefValid | prefGPR | prefFPR | prefGPRFirst
	AnyPreferFPR = prefValid | prefGPR | prefFPR
)

func (p BankPref) Valid() bool      { return p&prefValid != 0 }
func (p BankPref) GprAllowed() bool { return p&prefGPR != 0 }
func (p BankPref) FprAllowed() bool { return p&prefFPR != 0 }
func (p BankPref) HasChoices() bool { return p.GprAllowed() && p.FprAllowed() }

// GprPreferred is only meaningful when both banks are allowed.
func (p BankPref) GprPreferred() bool {
	return p&prefGPRFirst != 0
}

// Allows reports whether a decision for the given bank is legal.
func (p BankPref) Allows(gpr bool) bool {
	if gpr {
		return p.GprAllowed()
	} else {
		return p.FprAllowed()
	}
}

func (p BankPref) String() string {
	switch p {
	case MustGPR:
		return "gpr"
	case MustFPR:
		return "fpr"
	case AnyPreferGPR:
		return "any:gpr"
	case AnyPreferFPR:
		return "any:fpr"
	default:
		return fmt.Sprintf("BankPref(%#x)", uint8(p))
	}
}

func ParseBankPref(s string) (BankPref, error) {
	switch s {
	case "gpr":
		return MustGPR, nil
	case "fpr":
		return MustFPR, nil
	case "any", "any:gpr":
		return AnyPreferGPR, nil
	case "any:fpr":
		return AnyPreferFPR, nil
	default:
		return 0, fmt.Errorf("invalid register bank preference %q", s)
	}
}

func (p *BankPref) UnmarshalText(text []byte) (err error) {
	*p, err = ParseBankPref(string(text))
	return
}

func (p BankPref) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid register bank preference %#x", uint8(p))
	}
	return []byte(p.String()), nil
}
