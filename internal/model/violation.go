package model

import "time"

// ViolationType identifies which risk rule fired
type ViolationType string

const (
	ViolationDailyLoss         ViolationType = "DAILY_LOSS"
	ViolationPositionSize      ViolationType = "POSITION_SIZE"
	ViolationConsecutiveLosses ViolationType = "CONSECUTIVE_LOSSES"
	ViolationOrderRate         ViolationType = "ORDER_RATE"
	ViolationSlippage          ViolationType = "SLIPPAGE"
	ViolationLatency           ViolationType = "LATENCY"
	ViolationConnectionLost    ViolationType = "CONNECTION_LOST"
	ViolationManualHalt        ViolationType = "MANUAL_HALT"
)

// Severity grades a violation
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// GuardAction is the remediation chosen for a violation
type GuardAction string

const (
	ActionAlert       GuardAction = "alert"
	ActionRejectOrder GuardAction = "reject_order"
	ActionHaltSymbol  GuardAction = "halt_symbol"
	ActionHaltGlobal  GuardAction = "halt_global"
)

// GuardViolation is an immutable log entry describing one guard decision.
// Violations are appended to the guard history and never mutated.
type GuardViolation struct {
	Type      ViolationType `json:"type"`
	Message   string        `json:"message"`
	Severity  Severity      `json:"severity"`
	Action    GuardAction   `json:"action"`
	Symbol    string        `json:"symbol,omitempty"`
	Value     float64       `json:"value,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
