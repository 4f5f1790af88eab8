package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"idcore/internal/blob"
	"idcore/internal/optimistic"
)

// OpenEntityStore selects the blob backend from the environment (see
// blob.Open) and layers the entity codec over it.
func OpenEntityStore(ctx context.Context) (*BlobEntityStore, error) {
	blobs, err := blob.Open(ctx)
	if err != nil {
		return nil, err
	}
	return NewEntityStore(blobs), nil
}

// OptionsFromEnv reads retry tuning from the environment.
//
//	IDCORE_RETRY_BUDGET: attempt index at which updates give up (default 100)
//	IDCORE_RETRY_BACKOFF: initial wait between conflicting attempts, e.g.
//	  "5ms" (default 0, retry immediately)
func OptionsFromEnv() ([]ServiceOption, error) {
	var opts []ServiceOption
	if raw := os.Getenv("IDCORE_RETRY_BUDGET"); raw != "" {
		budget, err := strconv.Atoi(raw)
		if err != nil || budget <= 0 {
			return nil, fmt.Errorf("invalid IDCORE_RETRY_BUDGET %q", raw)
		}
		opts = append(opts, WithRetryBudget(budget))
	}
	if raw := os.Getenv("IDCORE_RETRY_BACKOFF"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			return nil, fmt.Errorf("invalid IDCORE_RETRY_BACKOFF %q", raw)
		}
		if wait > 0 {
			opts = append(opts, WithBackOff(optimistic.ExponentialBackOff(wait, 20*wait)))
		}
	}
	return opts, nil
}
