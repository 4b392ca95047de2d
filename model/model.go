/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Status is the value of one stage-status axis on a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExtracted Status = "extracted"
	StatusDesigned  Status = "designed"
	StatusAllocated Status = "allocated"
	StatusFailed    Status = "failed"
)

// Stage names one unit of pipeline work.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageDesign     Stage = "design"
	StageAllocation Stage = "allocation"
)

// DoneStatus returns the status a stage writes on success.
func (s Stage) DoneStatus() Status {
	switch s {
	case StageExtraction:
		return StatusExtracted
	case StageDesign:
		return StatusDesigned
	case StageAllocation:
		return StatusAllocated
	}
	return StatusPending
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageExtraction, StageDesign, StageAllocation:
		return true
	}
	return false
}

// GenerateUUIDWithSuffix generates a UUID prefixed with the given module name, e.g. "msg_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
