package importer

import (
	"context"
	"fmt"
	"time"

	chainerrors "chaincore/errors"
	"chaincore/logx"
	"chaincore/store"
)

// RetryPolicy bounds how hard the pipeline fights transient storage faults
// during the commit step. Exhausting the attempts is fatal: the node must
// halt rather than run with storage of unknown state.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy mirrors the default tuning config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    5,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
}

// commitWithRetry applies the commit, retrying transient i/o failures with
// exponential backoff. Non-retryable errors are returned as-is; retry
// exhaustion comes back as ErrIOExhausted.
func (p *Pipeline) commitWithRetry(ctx context.Context, commit *store.Commit) error {
	backoff := p.retry.BaseBackoff
	var lastErr error

	for attempt := 0; attempt <= p.retry.Attempts; attempt++ {
		err := p.index.ApplyCommit(commit)
		if err == nil {
			return nil
		}
		if !chainerrors.IsRetryable(err) {
			return err
		}
		lastErr = err
		logx.Warn("IMPORTER", fmt.Sprintf("Transient commit failure, backing off | attempt=%d backoff=%s err=%v", attempt+1, backoff, err))

		select {
		case <-ctx.Done():
			// Nothing was committed; the import is abandoned cleanly.
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.retry.MaxBackoff {
			backoff = p.retry.MaxBackoff
		}
	}
	return chainerrors.Wrap(chainerrors.ErrCodeIOExhausted, lastErr,
		"commit failed after %d attempts", p.retry.Attempts+1)
}
