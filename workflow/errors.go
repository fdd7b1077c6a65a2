// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package workflow

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when no definition has the given name.
var ErrNotFound = errors.New("workflow not found")

// WorkflowNotFoundError is returned when an operation names an unknown workflow.
type WorkflowNotFoundError struct {
	Name string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow %q not found", e.Name)
}

func (e *WorkflowNotFoundError) Unwrap() error { return ErrNotFound }

// WorkflowDisabledError is returned when a disabled workflow is run.
type WorkflowDisabledError struct {
	Name string
}

func (e *WorkflowDisabledError) Error() string {
	return fmt.Sprintf("workflow %q is disabled", e.Name)
}

// DuplicateWorkflowError is returned when creating a workflow whose name is taken.
type DuplicateWorkflowError struct {
	Name string
}

func (e *DuplicateWorkflowError) Error() string {
	return fmt.Sprintf("workflow %q already exists", e.Name)
}

// InvalidDefinitionError reports a definition that failed validation.
type InvalidDefinitionError struct {
	Name string
	Err  error
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow %q: %v", e.Name, e.Err)
}

func (e *InvalidDefinitionError) Unwrap() error { return e.Err }

// notFound converts a store miss into a WorkflowNotFoundError.
func notFound(name string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &WorkflowNotFoundError{Name: name}
	}
	return err
}
