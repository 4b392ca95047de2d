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
	"encoding/json"
	"time"
)

// Message is an inbound chat message and the state of its three pipeline stages.
type Message struct {
	ID               string          `json:"id"`
	MessageID        string          `json:"message_id"`
	SenderID         string          `json:"sender_id"`
	Text             string          `json:"text"`
	Date             time.Time       `json:"date"`
	RawPayload       json.RawMessage `json:"raw_payload,omitempty"`
	ExtractionStatus Status          `json:"extraction_status"`
	DesignStatus     Status          `json:"design_status"`
	AllocationStatus Status          `json:"allocation_status"`
	MeetingDetails   *MeetingDetails `json:"meeting_details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// StatusFor returns the message status on the axis owned by stage.
func (m *Message) StatusFor(stage Stage) Status {
	switch stage {
	case StageExtraction:
		return m.ExtractionStatus
	case StageDesign:
		return m.DesignStatus
	case StageAllocation:
		return m.AllocationStatus
	}
	return ""
}

// SetStatus updates the in-memory status for stage.
func (m *Message) SetStatus(stage Stage, status Status) {
	switch stage {
	case StageExtraction:
		m.ExtractionStatus = status
	case StageDesign:
		m.DesignStatus = status
	case StageAllocation:
		m.AllocationStatus = status
	}
}
