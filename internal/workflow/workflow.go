// Package workflow defines the ticket status set and the transition policy.
//
// The policy is deliberately unordered: any status may move to any other
// (including backward and same-state moves); only leaving the terminal
// status encerrado is forbidden.
package workflow

import (
	"errors"
	"fmt"

	"github.com/deskgo-io/deskgo/internal/models"
)

// Statuses is the canonical status order, used for menus and action lists.
var Statuses = []string{
	models.StatusNovo,
	models.StatusEmAnalise,
	models.StatusAguardandoCliente,
	models.StatusEmExecucao,
	models.StatusResolvido,
	models.StatusEncerrado,
}

var (
	// ErrTicketClosed rejects any transition out of the terminal status.
	ErrTicketClosed = errors.New("ticket is closed and cannot change status")
	// ErrUnknownStatus rejects statuses outside the canonical set.
	ErrUnknownStatus = errors.New("unknown ticket status")
)

// IsValidStatus reports whether s is one of the canonical statuses.
func IsValidStatus(s string) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ValidateTransition checks whether a ticket may move from one status to
// another. Every pair is legal except transitions out of encerrado.
func ValidateTransition(from, to string) error {
	if !IsValidStatus(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !IsValidStatus(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from == models.StatusEncerrado {
		return fmt.Errorf("%w: %s -> %s", ErrTicketClosed, from, to)
	}
	return nil
}

// AvailableActions returns the statuses a ticket may move to from the given
// status, in canonical order. Terminal tickets have no actions.
func AvailableActions(status string) []string {
	if status == models.StatusEncerrado || !IsValidStatus(status) {
		return nil
	}
	actions := make([]string, 0, len(Statuses)-1)
	for _, s := range Statuses {
		if s != status {
			actions = append(actions, s)
		}
	}
	return actions
}
