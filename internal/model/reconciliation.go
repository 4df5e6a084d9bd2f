package model

import (
	"strings"
	"time"
)

// ValidationStatus is the reconciliation outcome.
type ValidationStatus string

const (
	StatusUnverified ValidationStatus = "unverified"
	StatusConfirmed  ValidationStatus = "confirmed"
	StatusDivergent  ValidationStatus = "divergent"
)

// Warning codes attached to a reconciled simulation.
const (
	WarningSystemMismatch = "system_mismatch"
)

// ReconciledSimulation merges the local result with the authoritative quote.
type ReconciledSimulation struct {
	Local    LocalSimulationResult `json:"local"`
	Quote    *AuthoritativeQuote   `json:"quote,omitempty"`
	Status   ValidationStatus      `json:"status"`
	Delta    *float64              `json:"delta,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
}

// SimulationRecord is an accepted simulation as persisted by the store.
type SimulationRecord struct {
	ID         string                `json:"id"`
	Parameters SimulationParameters  `json:"parameters"`
	Local      LocalSimulationResult `json:"local"`
	Quote      AuthoritativeQuote    `json:"quote"`
	Status     ValidationStatus      `json:"status"`
	Delta      float64               `json:"delta"`
	CreatedAt  time.Time             `json:"created_at"`
}

// CityOption is a region-scoped city reference.
type CityOption struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func normalizeSystem(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
