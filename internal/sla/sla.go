// Package sla computes ticket deadlines and live breach/risk projections.
// Everything here is pure; callers recompute on every read.
package sla

import (
	"math"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

// SLA statuses.
const (
	StatusOK       = "ok"
	StatusRisco    = "risco"
	StatusQuebrado = "quebrado"
)

// riskThreshold marks a ticket at risk once 20% or less of its window remains.
const riskThreshold = 0.20

var hourBudgets = map[string]time.Duration{
	models.ImpactBaixo: 48 * time.Hour,
	models.ImpactMedio: 24 * time.Hour,
	models.ImpactAlto:  4 * time.Hour,
}

// CalculateDeadline returns createdAt plus the fixed hour budget for the
// impact level. Unknown impact falls back to medio's budget.
func CalculateDeadline(impact string, createdAt time.Time) time.Time {
	budget, ok := hourBudgets[impact]
	if !ok {
		budget = hourBudgets[models.ImpactMedio]
	}
	return createdAt.Add(budget)
}

// CalculateSLAStatus evaluates the deadline against the current time.
func CalculateSLAStatus(deadline, createdAt time.Time) models.SLAInfo {
	return CalculateSLAStatusAt(deadline, createdAt, time.Now().UTC())
}

// CalculateSLAStatusAt is CalculateSLAStatus with an explicit evaluation time.
func CalculateSLAStatusAt(deadline, createdAt, now time.Time) models.SLAInfo {
	totalWindow := deadline.Sub(createdAt)
	remaining := deadline.Sub(now)

	// A deadline not after creation is a data error; such tickets count as
	// breached and the percent arithmetic is skipped entirely.
	if totalWindow <= 0 || remaining <= 0 {
		return models.SLAInfo{Status: StatusQuebrado}
	}

	fraction := float64(remaining) / float64(totalWindow)
	status := StatusOK
	if fraction <= riskThreshold {
		status = StatusRisco
	}

	percent := int(math.Round(fraction * 100))
	if percent < 0 {
		percent = 0
	}
	return models.SLAInfo{
		Status:           status,
		HoursRemaining:   math.Round(remaining.Hours()*10) / 10,
		PercentRemaining: percent,
	}
}

// Enrich attaches the live SLA projection to a ticket.
func Enrich(t *models.Ticket) {
	if t == nil || t.SLADeadline.IsZero() {
		return
	}
	info := CalculateSLAStatus(t.SLADeadline, t.CreatedAt)
	t.SLA = &info
}

// EnrichAll attaches live SLA projections to every ticket in the slice.
func EnrichAll(tickets []*models.Ticket) {
	for _, t := range tickets {
		Enrich(t)
	}
}
