package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
)

const (
	// QueueCritical carries balance propagation.
	QueueCritical = "critical"
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskBalancesPropagate applies a posted voucher to account balances.
	TaskBalancesPropagate = "ledger:balances:propagate"
	// TaskGLIntegrity runs the read-only ledger integrity check.
	TaskGLIntegrity = "ledger:gl:integrity"
)

// PropagatePayload identifies the voucher whose balances should be applied.
type PropagatePayload struct {
	VoucherID int64 `json:"voucher_id"`
}

// PropagateTaskID deduplicates queued propagation for a voucher.
func PropagateTaskID(voucherID int64) string {
	return "balances:" + strconv.FormatInt(voucherID, 10)
}

// NewPropagateTask constructs the propagation task for voucherID.
func NewPropagateTask(voucherID int64, maxRetry int) (*asynq.Task, error) {
	if voucherID <= 0 {
		return nil, errors.New("jobs: voucher id must be positive")
	}
	data, err := json.Marshal(PropagatePayload{VoucherID: voucherID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalancesPropagate, data,
		asynq.TaskID(PropagateTaskID(voucherID)),
		asynq.MaxRetry(maxRetry),
		asynq.Queue(QueueCritical)), nil
}

func decodePropagate(t *asynq.Task) (PropagatePayload, error) {
	var payload PropagatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.VoucherID <= 0 {
		return payload, fmt.Errorf("invalid voucher id %d", payload.VoucherID)
	}
	return payload, nil
}

// NewGLIntegrityTask constructs the integrity check task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
