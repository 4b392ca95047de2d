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
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Complexity steers the guidance text of the design prompt.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

const (
	hoursPerMonth     = 160
	weeksPerMonth     = 4.33
	daysPerMonth      = 30
	minTimelineMonths = 0.5
)

var (
	weeksPattern  = regexp.MustCompile(`(\d+)\s*week`)
	monthsPattern = regexp.MustCompile(`(\d+)\s*month`)
	daysPattern   = regexp.MustCompile(`(\d+)\s*day`)
)

// TimelineToMonths converts free-text durations such as "6 weeks" or "3 months" into months.
// Weeks are checked before months, then days. Unparseable text counts as one month.
func TimelineToMonths(timeline string) float64 {
	t := strings.ToLower(timeline)

	if m := weeksPattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return math.Max(minTimelineMonths, n/weeksPerMonth)
	}
	if m := monthsPattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return math.Max(minTimelineMonths, n)
	}
	if m := daysPattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return math.Max(minTimelineMonths, n/daysPerMonth)
	}
	return 1
}

// TimelineToHours is the number of working hours in the timeline, at 160 hours a month.
func TimelineToHours(timeline string) int64 {
	return int64(math.Round(TimelineToMonths(timeline) * hoursPerMonth))
}

type complexityRule struct {
	keywords []string
	label    string
}

var (
	highComplexityRules = []complexityRule{
		{[]string{"enterprise", "scalable", "microservices"}, "enterprise-scale"},
		{[]string{"ai", "machine learning", "ml"}, "AI/ML integration"},
		{[]string{"real-time", "websocket", "socket"}, "real-time features"},
		{[]string{"payment", "e-commerce", "transaction"}, "payment processing"},
	}
	lowComplexityKeywords = []string{"simple", "basic", "landing page"}
)

// Assessment is the result of AssessComplexity.
type Assessment struct {
	Level      Complexity
	Indicators []string
	Months     float64
}

// AssessComplexity classifies requirements by keyword. Low-complexity keywords are checked
// last and override high ones. Keywords match as plain substrings.
func AssessComplexity(requirements, timeline string) Assessment {
	req := strings.ToLower(requirements)
	months := TimelineToMonths(timeline)

	a := Assessment{Level: ComplexityMedium, Months: months}
	for _, rule := range highComplexityRules {
		if containsAny(req, rule.keywords) {
			a.Level = ComplexityHigh
			a.Indicators = append(a.Indicators, rule.label)
		}
	}

	if containsAny(req, lowComplexityKeywords) {
		a.Level = ComplexityLow
		a.Indicators = append(a.Indicators, "simple scope")
	}
	if months < minTimelineMonths {
		a.Level = ComplexityLow
		a.Indicators = append(a.Indicators, "short timeline")
	}

	if len(a.Indicators) == 0 {
		a.Indicators = []string{"standard project"}
	}
	return a
}

// String renders the assessment for the design prompt.
func (a Assessment) String() string {
	var guidance string
	switch a.Level {
	case ComplexityHigh:
		guidance = "larger team and more resources"
	case ComplexityLow:
		guidance = "smaller team and minimal resources"
	default:
		guidance = "moderate team and standard resources"
	}
	return fmt.Sprintf("Project complexity: %s. Indicators: %s. Timeline: %.1f months. This suggests %s.",
		a.Level, strings.Join(a.Indicators, ", "), a.Months, guidance)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
