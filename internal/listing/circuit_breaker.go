package listing

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitBreaker stops fetching when listing sites start blocking us
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	failures            int
	successes           int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	now    func() time.Time
	logger *zap.Logger
	mutex  sync.Mutex
}

// BreakerStatus is a snapshot of the breaker counters
type BreakerStatus struct {
	Open     bool `json:"open"`
	Failures int  `json:"failures"`
	Total    int  `json:"total"`
}

// minSampleSize is the number of requests before the failure rate counts
const minSampleSize = 20

// NewCircuitBreaker creates a new circuit breaker. It opens once
// failureThreshold failures have accumulated over at least minSampleSize
// requests, or immediately after two consecutive blocking responses.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request. statusCode is 0 for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.consecutiveFailures >= 2 && isBlockingStatus(statusCode) {
		cb.isOpen = true
		cb.logger.Warn("circuit breaker open: consecutive blocking responses",
			zap.Int("consecutive", cb.consecutiveFailures),
			zap.Int("status", statusCode),
			zap.Duration("retry_after", cb.resetTimeout))
		return
	}

	if cb.totalRequests >= minSampleSize && cb.failures >= cb.failureThreshold {
		cb.isOpen = true
		cb.logger.Warn("circuit breaker open: failure rate",
			zap.Int("failures", cb.failures),
			zap.Int("total", cb.totalRequests),
			zap.Duration("retry_after", cb.resetTimeout))
	}
}

func isBlockingStatus(code int) bool {
	return code == 500 || code == 429 || code == 403
}

// CanProceed checks if requests are allowed. After resetTimeout an open
// breaker closes again with fresh counters.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.logger.Info("circuit breaker half-open", zap.Duration("after", cb.resetTimeout))
		cb.isOpen = false
		cb.failures = 0
		cb.successes = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// Status returns current circuit breaker counters
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return BreakerStatus{Open: cb.isOpen, Failures: cb.failures, Total: cb.totalRequests}
}
