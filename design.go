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
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/internal/llm"
	"github.com/labsync/labsync/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	budgetDesigner = "BudgetDesignService"

	defaultRoleCount = 1
	defaultRoleRate  = 50
	defaultRoleHours = 160

	// reconcileTolerance is the relative deviation below which the client's estimate wins.
	reconcileTolerance = 0.5
)

const designPromptTemplate = `You are an expert project budget planner. Design a detailed budget for the following project.

Project: %s
Client: %s
Estimated Budget: $%d
Timeline: %s (about %.1f months, %d working hours)
Requirements: %s

%s

Return ONLY valid JSON with this exact structure:

{
  "people_costs": {
    "<role_name>": { "count": number, "rate": number, "hours": number, "total": number }
  },
  "resource_costs": {
    "<resource_name>": number
  },
  "breakdown": [
    { "category": "string", "item": "string", "quantity": number, "unit_cost": number, "total": number }
  ],
  "total_budget": number
}

GUIDELINES:
- BE CREATIVE with roles: name them after the work the project needs (e.g. "drone_pilot", "data_engineer", "field_technician"), using snake_case
- rate is the hourly rate in USD, hours is the number of hours per person over the whole timeline
- Use %d hours as the baseline for full-time roles and scale part-time roles down
- resource_costs holds non-people costs such as equipment, software_licenses, hosting or travel
- Keep the total close to the estimated budget when one is given
- Return ONLY the JSON object, no markdown, no explanations`

func buildDesignPrompt(meeting *model.Meeting) string {
	months := TimelineToMonths(meeting.Timeline)
	hours := TimelineToHours(meeting.Timeline)
	assessment := AssessComplexity(meeting.Requirements, meeting.Timeline)

	return fmt.Sprintf(designPromptTemplate,
		meeting.ProjectName,
		meeting.ClientDetails.Name,
		meeting.EstimatedBudget,
		meeting.Timeline, months, hours,
		meeting.Requirements,
		assessment.String(),
		hours,
	)
}

// DesignBudget produces the budget for a meeting. A meeting whose message is already
// designed and has its budget returns that budget without calling the model.
func (l *Labsync) DesignBudget(ctx context.Context, meetingID string) (*model.Budget, error) {
	ctx, span := tracer.Start(ctx, "DesignBudget")
	defer span.End()
	span.SetAttributes(attribute.String("meeting.id", meetingID))

	meeting, err := l.datasource.GetMeetingByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	msg, err := l.datasource.GetMessageByID(ctx, meeting.MessageID)
	if err != nil {
		return nil, err
	}

	if msg.DesignStatus == model.StatusDesigned {
		existing, err := l.datasource.GetBudgetByMeetingID(ctx, meeting.MeetingID)
		if err == nil {
			return existing, nil
		}
		if !apierror.IsNotFound(err) {
			return nil, err
		}
	}

	budget, err := l.design(ctx, msg, meeting)
	if err != nil {
		span.RecordError(err)
		l.markFailed(ctx, msg.ID, model.StageDesign)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"meeting_id":   meeting.MeetingID,
		"budget_id":    budget.BudgetID,
		"total_budget": budget.TotalBudget,
	}).Info("budget designed")
	l.chain(ctx, model.StageAllocation, budget.BudgetID)
	return budget, nil
}

func (l *Labsync) design(ctx context.Context, msg *model.Message, meeting *model.Meeting) (*model.Budget, error) {
	if err := l.datasource.UpdateMessageStatus(ctx, msg.ID, model.StageDesign, model.StatusPending); err != nil {
		return nil, err
	}

	text, err := l.generate(ctx, buildDesignPrompt(meeting))
	if err != nil {
		return nil, fmt.Errorf("design budget for meeting %s: %w", meeting.MeetingID, err)
	}

	plan, err := parseBudgetPlan(text)
	if err != nil {
		logrus.WithField("meeting_id", meeting.MeetingID).Warnf("unparseable budget response, using fallback budget: %v", err)
		plan = fallbackBudgetPlan()
	} else if total := plan.total(); !model.InRange(total) {
		logrus.WithField("meeting_id", meeting.MeetingID).Warnf("budget response totals %g, using fallback budget", total)
		plan = fallbackBudgetPlan()
	}

	budget := &model.Budget{
		MeetingID:     meeting.MeetingID,
		ProjectName:   meeting.ProjectName,
		PeopleCosts:   plan.PeopleCosts,
		ResourceCosts: plan.ResourceCosts,
		Breakdown:     plan.Breakdown,
		DesignedBy:    budgetDesigner,
		DesignedAt:    time.Now(),
	}
	budget.TotalBudget = ReconcileTotal(budget.ComputedTotal(), meeting.EstimatedBudget)

	budget, err = l.datasource.UpsertBudget(ctx, budget)
	if err != nil {
		return nil, err
	}

	if err := l.datasource.UpdateMessageStatus(ctx, msg.ID, model.StageDesign, model.StatusDesigned); err != nil {
		return nil, err
	}
	msg.DesignStatus = model.StatusDesigned
	l.notifier.Emit(ctx, EventStatusUpdated, StatusUpdate{
		MessageID: msg.ID,
		Stage:     model.StageDesign,
		Status:    model.StatusDesigned,
		Message:   msg,
	})
	l.notifier.Emit(ctx, EventBudgetDesigned, BudgetDesigned{
		Budget:    budget,
		MeetingID: meeting.MeetingID,
		MessageID: msg.ID,
	})
	return budget, nil
}

// ReconcileTotal picks the persisted total: the client's estimate when the computed
// sum deviates from it by less than half, the computed sum otherwise. Both are rounded.
// A computed sum outside [0, model.MaxAmount] is clamped into it.
func ReconcileTotal(computed float64, estimated int64) int64 {
	switch {
	case math.IsNaN(computed) || computed < 0:
		computed = 0
	case computed > model.MaxAmount:
		computed = model.MaxAmount
	}
	c := decimal.NewFromFloat(computed)
	if estimated > 0 {
		est := decimal.NewFromInt(estimated)
		deviation := c.Sub(est).Abs().Div(est)
		if deviation.LessThan(decimal.NewFromFloat(reconcileTolerance)) {
			return estimated
		}
	}
	return c.Round(0).IntPart()
}

// budgetPlan is a normalized model reply.
type budgetPlan struct {
	PeopleCosts   model.PeopleCosts
	ResourceCosts model.ResourceCosts
	Breakdown     []model.BreakdownItem
}

func (p *budgetPlan) total() float64 {
	b := model.Budget{PeopleCosts: p.PeopleCosts, ResourceCosts: p.ResourceCosts, Breakdown: p.Breakdown}
	return b.ComputedTotal()
}

type rawBudget struct {
	PeopleCosts   json.RawMessage `json:"people_costs"`
	ResourceCosts json.RawMessage `json:"resource_costs"`
	Breakdown     json.RawMessage `json:"breakdown"`
}

func parseBudgetPlan(text string) (*budgetPlan, error) {
	var raw rawBudget
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &budgetPlan{
		PeopleCosts:   normalizePeopleCosts(raw.PeopleCosts),
		ResourceCosts: normalizeResourceCosts(raw.ResourceCosts),
		Breakdown:     normalizeBreakdown(raw.Breakdown),
	}, nil
}

// normalizePeopleCosts keeps role order as the model wrote it. Anything but an
// object becomes a single general_staff entry.
func normalizePeopleCosts(data json.RawMessage) model.PeopleCosts {
	out := model.PeopleCosts{}
	err := model.DecodeOrderedObject(data, func(role string, value json.RawMessage) error {
		var fields map[string]interface{}
		_ = json.Unmarshal(value, &fields)
		out.Set(role, normalizePeopleCost(fields))
		return nil
	})
	if err != nil || isNull(data) {
		out = model.PeopleCosts{}
		out.Set("general_staff", normalizePeopleCost(nil))
	}
	return out
}

// normalizePeopleCost fills defaults and always recomputes total. A role whose
// total would exceed model.MaxAmount gets the default role.
func normalizePeopleCost(fields map[string]interface{}) model.PeopleCost {
	cost := model.PeopleCost{
		Count: normalizeNumber(fields["count"], defaultRoleCount),
		Rate:  normalizeNumber(fields["rate"], defaultRoleRate),
		Hours: normalizeNumber(fields["hours"], defaultRoleHours),
	}
	cost.Total = cost.Count * cost.Rate * cost.Hours
	if !model.InRange(cost.Total) {
		cost = model.PeopleCost{Count: defaultRoleCount, Rate: defaultRoleRate, Hours: defaultRoleHours}
		cost.Total = cost.Count * cost.Rate * cost.Hours
	}
	return cost
}

// normalizeResourceCosts keeps resource order. Anything but an object becomes a
// single miscellaneous entry.
func normalizeResourceCosts(data json.RawMessage) model.ResourceCosts {
	out := model.ResourceCosts{}
	err := model.DecodeOrderedObject(data, func(resource string, value json.RawMessage) error {
		var v interface{}
		_ = json.Unmarshal(value, &v)
		out.Set(resource, normalizeNumber(v, 0))
		return nil
	})
	if err != nil || isNull(data) {
		out = model.ResourceCosts{}
		out.Set("miscellaneous", 500)
	}
	return out
}

func normalizeBreakdown(data json.RawMessage) []model.BreakdownItem {
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return []model.BreakdownItem{}
	}
	out := make([]model.BreakdownItem, 0, len(items))
	for _, item := range items {
		fields, _ := item.(map[string]interface{})
		out = append(out, model.BreakdownItem{
			Category: stringOr(fields["category"], "Other"),
			Item:     stringOr(fields["item"], "Unspecified"),
			Quantity: normalizeNumber(fields["quantity"], 1),
			UnitCost: normalizeNumber(fields["unit_cost"], 0),
			Total:    normalizeNumber(fields["total"], 0),
		})
	}
	return out
}

// fallbackBudgetPlan is the budget used when the model reply cannot be parsed.
func fallbackBudgetPlan() *budgetPlan {
	plan := &budgetPlan{
		PeopleCosts:   model.PeopleCosts{},
		ResourceCosts: model.ResourceCosts{},
		Breakdown:     []model.BreakdownItem{},
	}
	for _, r := range []struct {
		role               string
		count, rate, hours float64
	}{
		{"lead", 1, 100, 160},
		{"manager", 1, 80, 160},
		{"developer", 2, 65, 160},
		{"designer", 1, 55, 80},
		{"qa", 1, 45, 80},
	} {
		plan.PeopleCosts.Set(r.role, model.PeopleCost{
			Count: r.count, Rate: r.rate, Hours: r.hours,
			Total: r.count * r.rate * r.hours,
		})
	}
	for _, r := range []model.ResourceCostEntry{
		{Resource: "electricity", Amount: 200},
		{Resource: "rent", Amount: 2000},
		{Resource: "software_licenses", Amount: 1000},
		{Resource: "hardware", Amount: 2000},
		{Resource: "other", Amount: 1000},
	} {
		plan.ResourceCosts.Set(r.Resource, r.Amount)
	}
	return plan
}

var leadingNumberPattern = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// leadingNumber parses the longest numeric prefix of s, ignoring what follows.
func leadingNumber(s string) (float64, bool) {
	m := leadingNumberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeNumber accepts non-negative numbers and numeric strings up to model.MaxAmount.
// Anything else is def.
func normalizeNumber(v interface{}, def float64) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, ok := leadingNumber(val)
		if !ok {
			return def
		}
		f = parsed
	default:
		return def
	}
	if !model.InRange(f) {
		return def
	}
	return f
}

func isNull(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}
