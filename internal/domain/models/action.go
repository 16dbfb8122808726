package models

import (
	"encoding/json"
	"time"
)

type ActionKind string

const (
	KindGenerateSignal ActionKind = "generateSignal"
	KindExecuteTrade   ActionKind = "executeTrade"
	KindTrainModel     ActionKind = "trainModel"
	KindAnalyze        ActionKind = "analyze"
	KindUpdateConfig   ActionKind = "updateConfig"
)

// Idempotent reports whether a failed request of this kind may be reissued.
func (k ActionKind) Idempotent() bool {
	switch k {
	case KindTrainModel, KindAnalyze, KindUpdateConfig:
		return true
	default:
		return false
	}
}

type ActionStatus string

const (
	StatusInFlight  ActionStatus = "inFlight"
	StatusSucceeded ActionStatus = "succeeded"
	StatusFailed    ActionStatus = "failed"
	StatusAmbiguous ActionStatus = "ambiguous"
)

// Terminal reports whether no further transitions can happen.
func (s ActionStatus) Terminal() bool { return s != StatusInFlight }

// PendingAction tracks one user-initiated request to the backend.
type PendingAction struct {
	ID               string       `json:"id"`
	Kind             ActionKind   `json:"kind"`
	Symbol           string       `json:"symbol,omitempty"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`
	Status           ActionStatus `json:"status"`
	RetriesRemaining int          `json:"retries_remaining"`
	Error            string       `json:"error,omitempty"`
}

type TradeResult struct {
	Accepted bool   `json:"accepted"`
	Trade    *Trade `json:"trade,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type TrainStatus struct {
	Status string `json:"status"`
	Symbol string `json:"symbol"`
}

type Analysis struct {
	Type     string          `json:"type"`
	Symbol   string          `json:"symbol,omitempty"`
	Analysis string          `json:"analysis"`
	Findings json.RawMessage `json:"structured_findings,omitempty"`
}

type ConfigStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BackendConfig is an opaque credential/configuration blob forwarded as is.
type BackendConfig map[string]any
