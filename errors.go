/*
 * Copyright 2021 ByteDance Inc.
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

package dfg

import (
    `fmt`

    `github.com/cloudwego/dfg/internal/dfg/stacklayout`
)

// LimitError is the panic value raised when a function needs more constants
// or physical slots than its stack layout can describe. It is never returned
// as an error: the compilation cannot continue.
type LimitError = stacklayout.LimitError

// TraitError occures when a codegen trait table cannot be used.
type TraitError struct {
    Path   string
    Reason error
}

func (self TraitError) Error() string {
    if self.Path != "" {
        return fmt.Sprintf("TraitError(%s): %v", self.Path, self.Reason)
    } else {
        return fmt.Sprintf("TraitError: %v", self.Reason)
    }
}

func (self TraitError) Unwrap() error {
    return self.Reason
}
