// Package breaker 熔断器，用于保护外部日历源的拉取
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var (
	// ErrOpen 熔断打开时直接拒绝
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态下探测请求已满
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	halfOpenReq int
}

// New 创建熔断器
func New(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Call 在熔断保护下执行 fn
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenReq = 0
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenReq >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrTooManyRequests
		}
		cb.halfOpenReq++
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.failures = cb.maxFailures
	} else if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenReq = 0
}

// State 当前状态
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Group 按键（如日历源主机名）维护独立的熔断器
type Group struct {
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup 创建熔断器组
func NewGroup(maxFailures int, resetTimeout time.Duration) *Group {
	return &Group{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// Get 获取键对应的熔断器，不存在则创建
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		cb = New(g.maxFailures, g.resetTimeout)
		g.breakers[key] = cb
	}
	return cb
}
