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

package labsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
)

// memStore is an in-memory datasource with the same upsert and scan semantics
// as the Postgres one.
type memStore struct {
	mu          sync.Mutex
	clock       time.Time
	messages    map[string]*model.Message
	meetings    map[string]*model.Meeting
	budgets     map[string]*model.Budget
	allocations []model.Allocation

	// statusWrites records every UpdateMessageStatus call as "stage=status".
	statusWrites []string
}

func newMemStore() *memStore {
	return &memStore{
		clock:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		messages: map[string]*model.Message{},
		meetings: map[string]*model.Meeting{},
		budgets:  map[string]*model.Budget{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func notFound(entity string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", nil)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// addMessage stores a message directly, bypassing the upsert reset.
func (s *memStore) addMessage(text string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	msg := &model.Message{
		ID:               model.GenerateUUIDWithSuffix("msg"),
		MessageID:        now.Format("150405"),
		SenderID:         "42",
		Text:             text,
		Date:             now,
		ExtractionStatus: model.StatusPending,
		DesignStatus:     model.StatusPending,
		AllocationStatus: model.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.messages[msg.ID] = msg
	cp := *msg
	return &cp
}

func (s *memStore) UpsertMessage(_ context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	for _, existing := range s.messages {
		if existing.MessageID == msg.MessageID {
			existing.SenderID = msg.SenderID
			existing.Text = msg.Text
			existing.Date = msg.Date
			existing.RawPayload = msg.RawPayload
			existing.ExtractionStatus = model.StatusPending
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}
	stored := *msg
	stored.ID = model.GenerateUUIDWithSuffix("msg")
	stored.ExtractionStatus = model.StatusPending
	stored.DesignStatus = model.StatusPending
	stored.AllocationStatus = model.StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.messages[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (s *memStore) GetMessageByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, notFound("Message")
	}
	cp := *msg
	return &cp, nil
}

func (s *memStore) sortedMessages(keep func(*model.Message) bool) []model.Message {
	out := []model.Message{}
	for _, msg := range s.messages {
		if keep(msg) {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memStore) GetAllMessages(_ context.Context, limit, offset int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedMessages(func(*model.Message) bool { return true }), limit, offset), nil
}

func (s *memStore) UpdateMessageStatus(_ context.Context, id string, stage model.Stage, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !stage.Valid() {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "unknown stage", nil)
	}
	msg, ok := s.messages[id]
	if !ok {
		return notFound("Message")
	}
	msg.SetStatus(stage, status)
	msg.UpdatedAt = s.tick()
	s.statusWrites = append(s.statusWrites, string(stage)+"="+string(status))
	return nil
}

func (s *memStore) SaveMeetingDetails(_ context.Context, id string, details *model.MeetingDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return notFound("Message")
	}
	cp := *details
	msg.MeetingDetails = &cp
	msg.ExtractionStatus = model.StatusExtracted
	msg.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) GetMessagesForExtraction(_ context.Context, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedMessages(func(m *model.Message) bool {
		return (m.ExtractionStatus == model.StatusPending || m.ExtractionStatus == model.StatusFailed) &&
			strings.TrimSpace(m.Text) != ""
	}), limit, 0), nil
}

func (s *memStore) GetMessagesWithFailedDesign(_ context.Context, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedMessages(func(m *model.Message) bool {
		return m.ExtractionStatus == model.StatusExtracted && m.DesignStatus == model.StatusFailed
	}), limit, 0), nil
}

func (s *memStore) UpsertMeeting(_ context.Context, m *model.Meeting) (*model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	for _, existing := range s.meetings {
		if existing.MessageID == m.MessageID {
			existing.MeetingDetails = m.MeetingDetails
			existing.ExtractedAt = m.ExtractedAt
			cp := *existing
			return &cp, nil
		}
	}
	stored := *m
	stored.MeetingID = model.GenerateUUIDWithSuffix("mtg")
	stored.CreatedAt = now
	s.meetings[stored.MeetingID] = &stored
	cp := stored
	return &cp, nil
}

func (s *memStore) GetMeetingByID(_ context.Context, id string) (*model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, notFound("Meeting")
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) GetMeetingByMessageID(_ context.Context, messageID string) (*model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meetings {
		if m.MessageID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, notFound("Meeting")
}

func (s *memStore) sortedMeetings(keep func(*model.Meeting) bool) []model.Meeting {
	out := []model.Meeting{}
	for _, m := range s.meetings {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memStore) GetAllMeetings(_ context.Context, limit, offset int) ([]model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedMeetings(func(*model.Meeting) bool { return true }), limit, offset), nil
}

func (s *memStore) GetMeetingsAwaitingDesign(_ context.Context, limit int) ([]model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedMeetings(func(m *model.Meeting) bool {
		for _, b := range s.budgets {
			if b.MeetingID == m.MeetingID {
				return false
			}
		}
		msg, ok := s.messages[m.MessageID]
		return ok && msg.ExtractionStatus == model.StatusExtracted && msg.DesignStatus != model.StatusDesigned
	}), limit, 0), nil
}

func (s *memStore) UpsertBudget(_ context.Context, b *model.Budget) (*model.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	for _, existing := range s.budgets {
		if existing.MeetingID == b.MeetingID {
			id, created := existing.BudgetID, existing.CreatedAt
			*existing = *b
			existing.BudgetID, existing.CreatedAt = id, created
			cp := *existing
			return &cp, nil
		}
	}
	stored := *b
	stored.BudgetID = model.GenerateUUIDWithSuffix("bdg")
	stored.CreatedAt = now
	s.budgets[stored.BudgetID] = &stored
	cp := stored
	return &cp, nil
}

func (s *memStore) GetBudgetByID(_ context.Context, id string) (*model.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return nil, notFound("Budget")
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) GetBudgetByMeetingID(_ context.Context, meetingID string) (*model.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.MeetingID == meetingID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("Budget")
}

func (s *memStore) sortedBudgets(keep func(*model.Budget) bool) []model.Budget {
	out := []model.Budget{}
	for _, b := range s.budgets {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memStore) GetAllBudgets(_ context.Context, limit, offset int) ([]model.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedBudgets(func(*model.Budget) bool { return true }), limit, offset), nil
}

func (s *memStore) GetBudgetsAwaitingAllocation(_ context.Context, limit int) ([]model.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.sortedBudgets(func(b *model.Budget) bool {
		m, ok := s.meetings[b.MeetingID]
		if !ok {
			return false
		}
		msg, ok := s.messages[m.MessageID]
		return ok && msg.DesignStatus == model.StatusDesigned && msg.AllocationStatus == model.StatusPending
	}), limit, 0), nil
}

func (s *memStore) CreateAllocations(_ context.Context, allocations []model.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	for _, a := range allocations {
		duplicate := false
		for _, existing := range s.allocations {
			if existing.BudgetID == a.BudgetID && existing.Category == a.Category && existing.AllocatedTo == a.AllocatedTo {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		a.AllocationID = model.GenerateUUIDWithSuffix("alc")
		a.UpdatedAt = now
		s.allocations = append(s.allocations, a)
	}
	return nil
}

func (s *memStore) GetAllocationByID(_ context.Context, id string) (*model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.allocations {
		if a.AllocationID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, notFound("Allocation")
}

func (s *memStore) GetAllocationsByBudgetID(_ context.Context, budgetID string) ([]model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Allocation{}
	for _, a := range s.allocations {
		if a.BudgetID == budgetID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) GetAllAllocations(_ context.Context, limit, offset int) ([]model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(append([]model.Allocation{}, s.allocations...), limit, offset), nil
}

func (s *memStore) UpdateAllocation(_ context.Context, a *model.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.allocations {
		if s.allocations[i].AllocationID == a.AllocationID {
			s.allocations[i].ActualSpent = a.ActualSpent
			s.allocations[i].Notes = a.Notes
			s.allocations[i].UpdatedAt = s.tick()
			return nil
		}
	}
	return notFound("Allocation")
}

func (s *memStore) meetingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meetings)
}

func (s *memStore) allocationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.allocations)
}

func (s *memStore) message(id string) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

// scriptedGenerator answers prompts with respond and counts calls.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	respond := g.respond
	g.mu.Unlock()
	return respond(prompt)
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// isExtractionPrompt tells the two prompt kinds apart.
func isExtractionPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, "Extract meeting details")
}

type recordedEvent struct {
	name string
	data interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Emit(_ context.Context, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{name: event, data: data})
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.name)
	}
	return out
}

func (n *recordingNotifier) last(name string) (interface{}, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].name == name {
			return n.events[i].data, true
		}
	}
	return nil, false
}

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	err        error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, stage model.Stage, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, StageTaskID(stage, id))
	return d.err
}

func (d *recordingDispatcher) tasks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.dispatched...)
}

// pipelineFixture wires a Labsync over fakes with retries disabled.
type pipelineFixture struct {
	store      *memStore
	generator  *scriptedGenerator
	notifier   *recordingNotifier
	dispatcher *recordingDispatcher
	labsync    *Labsync
}

func newPipelineFixture(respond func(prompt string) (string, error)) *pipelineFixture {
	f := &pipelineFixture{
		store:      newMemStore(),
		generator:  &scriptedGenerator{respond: respond},
		notifier:   &recordingNotifier{},
		dispatcher: &recordingDispatcher{},
	}
	f.labsync = NewLabsync(f.store, f.generator,
		WithNotifier(f.notifier),
		WithDispatcher(f.dispatcher),
		WithRetryOptions(RetryOptions{MaxRetries: 0}),
	)
	return f
}
