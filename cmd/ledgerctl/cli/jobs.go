package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Inspector is the asynq inspector surface used by the CLI.
type Inspector interface {
	jobs.QueueInspector
	Close() error
}

// JobsCLI wraps manual management helpers for ledger jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string, maxRetry int) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return NewJobsCLIWith(jobs.NewClient(opts, maxRetry), asynq.NewInspector(opts))
}

// NewJobsCLIWith wraps existing clients.
func NewJobsCLIWith(client *jobs.Client, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Propagate enqueues balance propagation for voucherID.
func (c *JobsCLI) Propagate(ctx context.Context, voucherID int64) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueuePropagation(ctx, voucherID)
}

// Integrity enqueues an immediate GL integrity check.
func (c *JobsCLI) Integrity(ctx context.Context) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueIntegrityCheck(ctx)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Inspect writes queue depths as a table.
func (c *JobsCLI) Inspect(w io.Writer) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	stats, err := jobs.Stats(c.inspector)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tRETRY\tARCHIVED\tPROCESSED\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Retry, s.Archived, s.Processed, s.Failed)
	}
	return tw.Flush()
}
