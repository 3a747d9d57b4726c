// Package orchestrator runs the ledger cascade of a transaction: fraud checks,
// then inventory, then reward on create, and the reverse order on delete.
// Every step is best effort; a failed step is reported and the cascade moves
// on.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pasale/pasale-api/internal/domain/fraud"
	"github.com/pasale/pasale-api/internal/domain/inventory"
	"github.com/pasale/pasale-api/internal/domain/reward"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/pkg/logger"
)

const tracerName = "github.com/pasale/pasale-api/orchestrator"

type FraudChecker interface {
	RunAllChecks(ctx context.Context, c fraud.Check) ([]*fraud.Alert, error)
}

type InventoryApplier interface {
	ApplyTransaction(ctx context.Context, t *transaction.Transaction) (*inventory.Record, error)
	ReverseForTransaction(ctx context.Context, shopID, productID, transactionID uuid.UUID) (bool, error)
}

type RewardApplier interface {
	AwardForTransaction(ctx context.Context, shopID, transactionID uuid.UUID, t transaction.Type) (*reward.Entry, error)
	ReverseForTransaction(ctx context.Context, transactionID uuid.UUID) (bool, error)
}

var _ transaction.Effects = (*Orchestrator)(nil)

// Orchestrator implements transaction.Effects.
type Orchestrator struct {
	fraud     FraudChecker
	inventory InventoryApplier
	reward    RewardApplier
	tracer    trace.Tracer
}

func New(fraud FraudChecker, inventory InventoryApplier, reward RewardApplier) *Orchestrator {
	return &Orchestrator{
		fraud:     fraud,
		inventory: inventory,
		reward:    reward,
		tracer:    otel.Tracer(tracerName),
	}
}

type stepFunc func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error)

// run executes one step in its own span and appends its result. Panics are
// turned into failures.
func (o *Orchestrator) run(ctx context.Context, report *transaction.Report, step transaction.Step, fn stepFunc) {
	ctx, span := o.tracer.Start(ctx, "ledger."+string(step), trace.WithAttributes(
		attribute.String("transaction.id", report.TransactionID.String()),
		attribute.String("ledger.path", string(report.Path)),
	))
	defer span.End()

	result := transaction.StepResult{Step: step}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				result.Status = transaction.StepFailed
				result.Error = fmt.Sprintf("panic: %v", rec)
			}
		}()
		status, detail, err := fn(ctx)
		result.Status, result.Detail = status, detail
		if err != nil {
			result.Status = transaction.StepFailed
			result.Error = err.Error()
		}
	}()

	span.SetAttributes(attribute.String("ledger.step_status", string(result.Status)))
	if result.Status == transaction.StepFailed {
		span.SetStatus(codes.Error, result.Error)
		logger.FromContext(ctx).Error().
			Str("transaction_id", report.TransactionID.String()).
			Str("step", string(step)).
			Str("error", result.Error).
			Msg("ledger side effect failed")
	}
	report.Steps = append(report.Steps, result)
}

// CreateEffects runs fraud_check, inventory_apply and reward_award exactly once
// each, in that order.
func (o *Orchestrator) CreateEffects(ctx context.Context, t *transaction.Transaction) *transaction.Report {
	ctx, span := o.tracer.Start(ctx, "ledger.create_effects")
	defer span.End()

	report := &transaction.Report{TransactionID: t.ID, Path: transaction.PathCreate, State: transaction.StateCreated}

	o.run(ctx, report, transaction.StepFraudCheck, func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error) {
		alerts, err := o.fraud.RunAllChecks(ctx, fraud.CheckFor(t))
		types := make([]string, 0, len(alerts))
		for _, a := range alerts {
			types = append(types, string(a.Type))
		}
		return transaction.StepOK, map[string]interface{}{"alerts": len(alerts), "fraud_types": types}, err
	})
	report.State = transaction.StateFraudChecked

	o.run(ctx, report, transaction.StepInventoryApply, func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error) {
		if !t.HasProduct() {
			return transaction.StepSkipped, nil, nil
		}
		rec, err := o.inventory.ApplyTransaction(ctx, t)
		if err != nil {
			return transaction.StepFailed, nil, err
		}
		return transaction.StepOK, map[string]interface{}{"quantity_after": rec.CurrentQuantity}, nil
	})
	report.State = transaction.StateInventoryApplied

	o.run(ctx, report, transaction.StepRewardAward, func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error) {
		entry, err := o.reward.AwardForTransaction(ctx, t.ShopID, t.ID, t.Type)
		if err != nil {
			return transaction.StepFailed, nil, err
		}
		if entry == nil {
			return transaction.StepNoop, nil, nil
		}
		return transaction.StepOK, map[string]interface{}{
			"points":        entry.PointsChange,
			"balance_after": entry.BalanceAfter,
		}, nil
	})
	report.State = transaction.StateRewardApplied

	return report
}

// DeleteEffects reverses reward before inventory. Reversals with nothing left
// to undo report noop.
func (o *Orchestrator) DeleteEffects(ctx context.Context, transactionID, shopID uuid.UUID, productID *uuid.UUID) *transaction.Report {
	ctx, span := o.tracer.Start(ctx, "ledger.delete_effects")
	defer span.End()

	report := &transaction.Report{TransactionID: transactionID, Path: transaction.PathDelete, State: transaction.StateDeleteRequested}

	o.run(ctx, report, transaction.StepRewardReverse, func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error) {
		reversed, err := o.reward.ReverseForTransaction(ctx, transactionID)
		return reversalStatus(reversed, err)
	})
	report.State = transaction.StateRewardReversed

	o.run(ctx, report, transaction.StepInventoryReverse, func(ctx context.Context) (transaction.StepStatus, map[string]interface{}, error) {
		if productID == nil {
			return transaction.StepSkipped, nil, nil
		}
		reversed, err := o.inventory.ReverseForTransaction(ctx, shopID, *productID, transactionID)
		return reversalStatus(reversed, err)
	})
	report.State = transaction.StateInventoryReversed

	return report
}

func reversalStatus(reversed bool, err error) (transaction.StepStatus, map[string]interface{}, error) {
	switch {
	case err != nil:
		return transaction.StepFailed, nil, err
	case !reversed:
		return transaction.StepNoop, nil, nil
	default:
		return transaction.StepOK, nil, nil
	}
}
