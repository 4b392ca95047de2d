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
package mocks

import (
	"context"

	"github.com/labsync/labsync/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Message methods

func (m *MockDataSource) UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockDataSource) GetAllMessages(ctx context.Context, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockDataSource) UpdateMessageStatus(ctx context.Context, id string, stage model.Stage, status model.Status) error {
	args := m.Called(ctx, id, stage, status)
	return args.Error(0)
}

func (m *MockDataSource) SaveMeetingDetails(ctx context.Context, id string, details *model.MeetingDetails) error {
	args := m.Called(ctx, id, details)
	return args.Error(0)
}

func (m *MockDataSource) GetMessagesForExtraction(ctx context.Context, limit int) ([]model.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockDataSource) GetMessagesWithFailedDesign(ctx context.Context, limit int) ([]model.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Message), args.Error(1)
}

// Meeting methods

func (m *MockDataSource) UpsertMeeting(ctx context.Context, meeting *model.Meeting) (*model.Meeting, error) {
	args := m.Called(ctx, meeting)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Meeting), args.Error(1)
}

func (m *MockDataSource) GetMeetingByID(ctx context.Context, id string) (*model.Meeting, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Meeting), args.Error(1)
}

func (m *MockDataSource) GetMeetingByMessageID(ctx context.Context, messageID string) (*model.Meeting, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Meeting), args.Error(1)
}

func (m *MockDataSource) GetAllMeetings(ctx context.Context, limit, offset int) ([]model.Meeting, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Meeting), args.Error(1)
}

func (m *MockDataSource) GetMeetingsAwaitingDesign(ctx context.Context, limit int) ([]model.Meeting, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Meeting), args.Error(1)
}

// Budget methods

func (m *MockDataSource) UpsertBudget(ctx context.Context, b *model.Budget) (*model.Budget, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Budget), args.Error(1)
}

func (m *MockDataSource) GetBudgetByID(ctx context.Context, id string) (*model.Budget, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Budget), args.Error(1)
}

func (m *MockDataSource) GetBudgetByMeetingID(ctx context.Context, meetingID string) (*model.Budget, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Budget), args.Error(1)
}

func (m *MockDataSource) GetAllBudgets(ctx context.Context, limit, offset int) ([]model.Budget, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Budget), args.Error(1)
}

func (m *MockDataSource) GetBudgetsAwaitingAllocation(ctx context.Context, limit int) ([]model.Budget, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Budget), args.Error(1)
}

// Allocation methods

func (m *MockDataSource) CreateAllocations(ctx context.Context, allocations []model.Allocation) error {
	args := m.Called(ctx, allocations)
	return args.Error(0)
}

func (m *MockDataSource) GetAllocationByID(ctx context.Context, id string) (*model.Allocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Allocation), args.Error(1)
}

func (m *MockDataSource) GetAllocationsByBudgetID(ctx context.Context, budgetID string) ([]model.Allocation, error) {
	args := m.Called(ctx, budgetID)
	return args.Get(0).([]model.Allocation), args.Error(1)
}

func (m *MockDataSource) GetAllAllocations(ctx context.Context, limit, offset int) ([]model.Allocation, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Allocation), args.Error(1)
}

func (m *MockDataSource) UpdateAllocation(ctx context.Context, a *model.Allocation) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}
