package controllers

import (
	"github.com/stakeaware/accessgate/internal/pkg/ledger"
	"github.com/stakeaware/accessgate/internal/pkg/notify"
	"github.com/stakeaware/accessgate/internal/pkg/paystack"
)

// Deps carries the shared collaborators the handlers close over. The ledger
// service must be a single instance per process: its mutex is the critical
// section that serializes all ledger mutations.
type Deps struct {
	Service  *ledger.Service
	Verifier *paystack.Verifier
	Notifier notify.Notifier

	// Sweep triggers one manual reconciliation pass (admin use). Optional.
	Sweep func() error

	AccessBotUsername string
	DailyGroupLink    string
	WeekendGroupLink  string
}

var deps Deps

// Setup wires the handler dependencies. Must run before routes are installed.
func Setup(d Deps) {
	deps = d
}
