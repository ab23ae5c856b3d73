// Package workflow holds the pure phase rules: approval inference, default
// questions, duration computation and the advance diagnostic.
package workflow

import (
	"strings"

	"devmarket/internal/model"
)

var approvalKeywords = []string{"design", "launch", "approval", "review", "handoff"}

// InferApprovalRequirement reports whether a phase with this title needs client sign-off.
func InferApprovalRequirement(title string) bool {
	return containsAny(strings.ToLower(title), approvalKeywords)
}

// Category is the question set a phase title maps to.
type Category string

const (
	CategoryDesign      Category = "design"
	CategoryDevelopment Category = "development"
	CategoryTesting     Category = "testing"
	CategoryLaunch      Category = "launch"
	CategoryPlanning    Category = "planning"
	CategoryGeneric     Category = "generic"
)

type questionSpec struct {
	text     string
	required bool
}

// Rows are matched in order; the first keyword hit wins.
var categoryTable = []struct {
	category  Category
	keywords  []string
	questions []questionSpec
}{
	{
		category: CategoryDesign,
		keywords: []string{"design"},
		questions: []questionSpec{
			{"Do you approve the proposed designs and mockups?", true},
			{"Are there brand guidelines, colors or fonts we should follow?", false},
			{"Are there reference sites or apps whose look you like?", false},
		},
	},
	{
		category: CategoryDevelopment,
		keywords: []string{"development", "build"},
		questions: []questionSpec{
			{"Have you provided all the content and credentials needed for development?", true},
			{"Are there third-party services or APIs we must integrate with?", false},
			{"Do you have hosting or infrastructure preferences?", false},
		},
	},
	{
		category: CategoryTesting,
		keywords: []string{"testing", "qa"},
		questions: []questionSpec{
			{"Have you reviewed the staging build and reported any issues?", true},
			{"Which devices and browsers must be supported?", false},
		},
	},
	{
		category: CategoryLaunch,
		keywords: []string{"launch", "handoff"},
		questions: []questionSpec{
			{"Do you approve the release for launch?", true},
			{"Who should receive the handoff documentation and credentials?", false},
			{"Do you need a maintenance or support plan after launch?", false},
		},
	},
	{
		category: CategoryPlanning,
		keywords: []string{"planning", "discovery"},
		questions: []questionSpec{
			{"Do you agree with the project scope and requirements as documented?", true},
			{"Are there deadlines or milestones we should plan around?", false},
		},
	},
}

var genericQuestions = []questionSpec{
	{"Is there anything else we should know for this phase?", false},
}

// Categorize maps a phase title to its question category.
func Categorize(title string) Category {
	lower := strings.ToLower(title)
	for _, row := range categoryTable {
		if containsAny(lower, row.keywords) {
			return row.category
		}
	}
	return CategoryGeneric
}

// DefaultQuestions returns the fixed question set for title, ordered from 1.
// Returned questions carry no ids.
func DefaultQuestions(title string) []model.Question {
	specs := genericQuestions
	cat := Categorize(title)
	for _, row := range categoryTable {
		if row.category == cat {
			specs = row.questions
			break
		}
	}

	out := make([]model.Question, 0, len(specs))
	for i, s := range specs {
		out = append(out, model.Question{Question: s.text, Required: s.required, Order: i + 1})
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
