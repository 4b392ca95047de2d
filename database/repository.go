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

package database

import (
	"context"

	"github.com/labsync/labsync/model"
)

// IDataSource is the persistence surface of the pipeline.
type IDataSource interface {
	message
	meeting
	budget
	allocation
}

type message interface {
	UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) // Inserts or refreshes by external message_id, resetting extraction to pending
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
	GetAllMessages(ctx context.Context, limit, offset int) ([]model.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, stage model.Stage, status model.Status) error
	SaveMeetingDetails(ctx context.Context, id string, details *model.MeetingDetails) error // Stores the normalized extraction and marks the message extracted
	GetMessagesForExtraction(ctx context.Context, limit int) ([]model.Message, error)      // Pending or failed extraction with non-empty text, newest first
	GetMessagesWithFailedDesign(ctx context.Context, limit int) ([]model.Message, error)
}

type meeting interface {
	UpsertMeeting(ctx context.Context, m *model.Meeting) (*model.Meeting, error) // Keyed by message id
	GetMeetingByID(ctx context.Context, id string) (*model.Meeting, error)
	GetMeetingByMessageID(ctx context.Context, messageID string) (*model.Meeting, error)
	GetAllMeetings(ctx context.Context, limit, offset int) ([]model.Meeting, error)
	GetMeetingsAwaitingDesign(ctx context.Context, limit int) ([]model.Meeting, error) // Extracted, no budget yet, design not done
}

type budget interface {
	UpsertBudget(ctx context.Context, b *model.Budget) (*model.Budget, error) // Keyed by meeting id
	GetBudgetByID(ctx context.Context, id string) (*model.Budget, error)
	GetBudgetByMeetingID(ctx context.Context, meetingID string) (*model.Budget, error)
	GetAllBudgets(ctx context.Context, limit, offset int) ([]model.Budget, error)
	GetBudgetsAwaitingAllocation(ctx context.Context, limit int) ([]model.Budget, error) // Owning message designed, allocation pending
}

type allocation interface {
	CreateAllocations(ctx context.Context, allocations []model.Allocation) error // One transaction for the whole batch
	GetAllocationByID(ctx context.Context, id string) (*model.Allocation, error)
	GetAllocationsByBudgetID(ctx context.Context, budgetID string) ([]model.Allocation, error)
	GetAllAllocations(ctx context.Context, limit, offset int) ([]model.Allocation, error)
	UpdateAllocation(ctx context.Context, a *model.Allocation) error // Writes actual_spent and notes
}
