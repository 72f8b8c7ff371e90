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

package opts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSlot(t *testing.T) {
	const key = "DFG_TEST_SLOT"
	assert.Equal(t, 2, parseSlot(key, 2, 1))

	t.Setenv(key, "6")
	assert.Equal(t, 6, parseSlot(key, 2, 1))

	t.Setenv(key, "32767")
	assert.Equal(t, 32767, parseSlot(key, 2, 1))

	t.Setenv(key, "32768")
	assert.PanicsWithValue(t, "dfg: value too large for "+key, func() { parseSlot(key, 2, 1) })

	t.Setenv(key, "1")
	assert.PanicsWithValue(t, "dfg: value too small for "+key, func() { parseSlot(key, 2, 1) })

	t.Setenv(key, "slot")
	assert.PanicsWithValue(t, "dfg: invalid value for "+key, func() { parseSlot(key, 2, 1) })
}

func TestParseLimit(t *testing.T) {
	const key = "DFG_TEST_LIMIT"
	assert.Equal(t, 32768, parseLimit(key, 32768))

	t.Setenv(key, "100")
	assert.Equal(t, 100, parseLimit(key, 32768))

	t.Setenv(key, "40000")
	assert.PanicsWithValue(t, "dfg: value too large for "+key, func() { parseLimit(key, 32768) })
}
