package retry

import "sync/atomic"

// Stats accumulates retry outcomes across many operations. Safe for
// concurrent use; read with Snapshot.
type Stats struct {
	firstTrySuccesses    atomic.Int64
	retriedSuccesses     atomic.Int64
	exhaustedFailures    atomic.Int64
	nonRetryableFailures atomic.Int64
	totalAttempts        atomic.Int64
}

type StatsSnapshot struct {
	FirstTrySuccesses    int64 `json:"first_try_successes"`
	RetriedSuccesses     int64 `json:"retried_successes"`
	ExhaustedFailures    int64 `json:"exhausted_failures"`
	NonRetryableFailures int64 `json:"non_retryable_failures"`
	TotalAttempts        int64 `json:"total_attempts"`
}

func (s *Stats) Record(success bool, attempts int, retriesExhausted bool) {
	s.totalAttempts.Add(int64(attempts))
	switch {
	case success && attempts == 1:
		s.firstTrySuccesses.Add(1)
	case success:
		s.retriedSuccesses.Add(1)
	case retriesExhausted:
		s.exhaustedFailures.Add(1)
	default:
		s.nonRetryableFailures.Add(1)
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FirstTrySuccesses:    s.firstTrySuccesses.Load(),
		RetriedSuccesses:     s.retriedSuccesses.Load(),
		ExhaustedFailures:    s.exhaustedFailures.Load(),
		NonRetryableFailures: s.nonRetryableFailures.Load(),
		TotalAttempts:        s.totalAttempts.Load(),
	}
}
