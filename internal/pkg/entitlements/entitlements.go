package entitlements

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Normalize maps arbitrary plan strings onto a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// IsPro reports whether the plan grants Pro features.
func IsPro(plan string) bool {
	return Normalize(plan) == PlanPro
}

// GenerationsPerMonth returns the monthly blueprint generation quota for a plan.
func GenerationsPerMonth(plan Plan) int64 {
	if plan == PlanPro {
		return 100
	}
	return 3
}

// ChatMessagesPerDay returns the daily chat message quota for a plan.
func ChatMessagesPerDay(plan Plan) int64 {
	if plan == PlanPro {
		return 200
	}
	return 10
}
