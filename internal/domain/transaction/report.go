package transaction

import "github.com/google/uuid"

// Path distinguishes the create cascade from the delete cascade.
type Path string

const (
	PathCreate Path = "create"
	PathDelete Path = "delete"
)

// State is the furthest point a cascade reached.
type State string

const (
	StateCreated          State = "created"
	StateFraudChecked     State = "fraud_checked"
	StateInventoryApplied State = "inventory_applied"
	StateRewardApplied    State = "reward_applied"

	StateDeleteRequested   State = "delete_requested"
	StateRewardReversed    State = "reward_reversed"
	StateInventoryReversed State = "inventory_reversed"
	StateRemoved           State = "removed"
)

// Step names one ledger side effect.
type Step string

const (
	StepFraudCheck       Step = "fraud_check"
	StepInventoryApply   Step = "inventory_apply"
	StepRewardAward      Step = "reward_award"
	StepRewardReverse    Step = "reward_reverse"
	StepInventoryReverse Step = "inventory_reverse"
)

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepNoop    StepStatus = "noop"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult records the outcome of one side effect. A failed step never
// fails the transaction itself.
type StepResult struct {
	Step   Step                   `json:"step"`
	Status StepStatus             `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Report is the side-effect report of one cascade.
type Report struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	Path          Path         `json:"path"`
	State         State        `json:"state"`
	Steps         []StepResult `json:"steps"`
}

// Failed lists the steps that did not complete.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// Result returns the outcome of step, if it ran.
func (r *Report) Result(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}
