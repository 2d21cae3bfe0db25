// Package ratelimit provides provider-level rate limiting for LLM clients.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/logx"
	"issueflow/pkg/utils"
)

const (
	// bufferFactor leaves headroom below the provider's advertised rate so
	// that token estimation error does not push us over the real limit.
	bufferFactor = 0.9

	// maxAcquireWait bounds how long a single Acquire may block. The bucket
	// refills to full capacity over ~1 minute, so a wait past two full
	// refill cycles means the request can never be satisfied.
	maxAcquireWait = 2 * time.Minute

	refillInterval = 6 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Acquire attempts to atomically acquire tokens and a concurrency slot.
	// Returns a release function that must be called to return the slot.
	// Blocks until both resources are available or the context is cancelled.
	Acquire(ctx context.Context, tokens int, requesterID string) (releaseFunc func(), err error)

	// GetStats returns current limiter statistics.
	GetStats() LimiterStats
}

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	// EstimatePrompt estimates the number of prompt tokens for a request.
	EstimatePrompt(req llm.CompletionRequest) int
}

// Config defines rate limiting configuration for a provider.
type Config struct {
	TokensPerMinute int `json:"tokens_per_minute"` // Rate limit in tokens per minute
	MaxConcurrency  int `json:"max_concurrency"`   // Maximum concurrent requests
}

// DefaultTokenEstimator estimates prompt size with tiktoken over message
// content and tool results.
type DefaultTokenEstimator struct{}

// NewDefaultTokenEstimator creates a new default token estimator.
func NewDefaultTokenEstimator() TokenEstimator {
	return &DefaultTokenEstimator{}
}

// EstimatePrompt counts tokens across message text and tool result payloads.
//
//nolint:gocritic // 80 bytes is reasonable for token estimation
func (e *DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
		for j := range req.Messages[i].ToolResults {
			promptText += req.Messages[i].ToolResults[j].Content + "\n"
		}
	}
	return utils.CountTokensSimple(promptText)
}

// acquisition tracks a single concurrency slot acquisition for cleanup purposes.
type acquisition struct {
	timestamp   time.Time
	requesterID string
}

// TokenBucketLimiter implements rate limiting using a token bucket combined
// with a concurrency semaphore. Both resources are acquired under one lock so
// a caller never holds tokens without a slot or vice versa.
//
//nolint:govet // fieldalignment: struct layout kept readable
type TokenBucketLimiter struct {
	mu sync.Mutex

	provider string

	// Token bucket state
	availableTokens int // Current tokens available
	tokensPerRefill int // Tokens added every refill (tokens_per_minute / 10)
	maxCapacity     int // Maximum bucket capacity (tokens_per_minute * bufferFactor)

	// Concurrency limiting
	activeRequests int            // Current active requests
	maxConcurrency int            // Maximum concurrent requests
	acquisitions   []*acquisition // Active acquisitions, tracked for stale cleanup
	releaseTimeout time.Duration  // Age past which an unreleased slot is reclaimed

	// Congestion counters
	tokenLimitHits  int64 // Times a caller had to wait for tokens
	concurrencyHits int64 // Times a caller had to wait for a slot
}

// LimiterStats represents current rate limiter statistics.
type LimiterStats struct {
	Provider            string `json:"provider"`
	AvailableTokens     int    `json:"available_tokens"`
	MaxCapacity         int    `json:"max_capacity"`
	ActiveRequests      int    `json:"active_requests"`
	MaxConcurrency      int    `json:"max_concurrency"`
	TokenLimitHits      int64  `json:"token_limit_hits"`
	ConcurrencyHits     int64  `json:"concurrency_hits"`
	TrackedAcquisitions int    `json:"tracked_acquisitions"`
}

// NewTokenBucketLimiter creates a token bucket rate limiter for a provider.
// requestTimeout should match the client request timeout; slots held longer
// than twice that are treated as leaked and reclaimed.
func NewTokenBucketLimiter(provider string, cfg Config, requestTimeout time.Duration) *TokenBucketLimiter {
	maxCapacity := int(float64(cfg.TokensPerMinute) * bufferFactor)

	// Refill every 6 seconds (divide by 10 for per-minute rate).
	tokensPerRefill := cfg.TokensPerMinute / 10

	return &TokenBucketLimiter{
		provider:        provider,
		availableTokens: maxCapacity, // Start with a full bucket
		tokensPerRefill: tokensPerRefill,
		maxCapacity:     maxCapacity,
		maxConcurrency:  cfg.MaxConcurrency,
		acquisitions:    make([]*acquisition, 0),
		releaseTimeout:  requestTimeout * 2,
	}
}

// Acquire atomically acquires both tokens and a concurrency slot.
// Returns a release function that MUST be called (via defer) to return the
// slot. Blocks until both resources are available, the context is cancelled,
// or maxAcquireWait elapses.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int, requesterID string) (func(), error) {
	firstAttempt := true
	startTime := time.Now()

	for {
		l.mu.Lock()

		// At capacity: opportunistically reclaim slots whose holders died.
		if l.activeRequests >= l.maxConcurrency {
			l.cleanStaleAcquisitions()
		}

		// Check both conditions atomically under the same lock.
		hasTokens := l.availableTokens >= tokens
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokens
			l.activeRequests++

			acq := &acquisition{
				timestamp:   time.Now(),
				requesterID: requesterID,
			}
			l.acquisitions = append(l.acquisitions, acq)

			releaseFunc := func() {
				l.release(acq)
			}

			l.mu.Unlock()
			return releaseFunc, nil
		}

		elapsed := time.Since(startTime)
		if elapsed > maxAcquireWait {
			l.mu.Unlock()
			return nil, fmt.Errorf("rate limit acquisition timeout after %v "+
				"(requested %d tokens, max capacity %d, provider: %s, requester: %s)",
				elapsed.Round(time.Second), tokens, l.maxCapacity, l.provider, requesterID)
		}

		// Record what blocked us, first attempt only to avoid log spam.
		if firstAttempt {
			if !hasTokens {
				l.tokenLimitHits++
				logx.Infof("ratelimit: %s token limit hit, waiting for refill (need %d, have %d, requester: %s)",
					l.provider, tokens, l.availableTokens, requesterID)
			}
			if !hasSlot {
				l.concurrencyHits++
				logx.Infof("ratelimit: %s concurrency limit hit, waiting for slot (active: %d/%d, requester: %s)",
					l.provider, l.activeRequests, l.maxConcurrency, requesterID)
			}
			firstAttempt = false
		}

		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(pollInterval):
			continue
		}
	}
}

// release returns a concurrency slot. Consumed tokens are not refunded.
func (l *TokenBucketLimiter) release(acq *acquisition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, a := range l.acquisitions {
		if a == acq {
			l.acquisitions = append(l.acquisitions[:i], l.acquisitions[i+1:]...)
			break
		}
	}

	l.activeRequests--
}

// cleanStaleAcquisitions reclaims slots older than releaseTimeout.
// Called under lock when concurrency appears full.
func (l *TokenBucketLimiter) cleanStaleAcquisitions() {
	now := time.Now()
	cleaned := 0

	validAcquisitions := make([]*acquisition, 0, len(l.acquisitions))
	for _, acq := range l.acquisitions {
		if now.Sub(acq.timestamp) > l.releaseTimeout {
			cleaned++
			l.activeRequests--
			_ = logx.Errorf("ratelimit: force-released stale concurrency slot after %v (provider: %s, requester: %s)",
				l.releaseTimeout, l.provider, acq.requesterID)
		} else {
			validAcquisitions = append(validAcquisitions, acq)
		}
	}
	l.acquisitions = validAcquisitions

	if cleaned > 0 {
		logx.Warnf("ratelimit: cleaned %d stale concurrency slots for provider %s", cleaned, l.provider)
	}
}

// startRefillTimer starts a background goroutine that refills tokens every
// refillInterval. Stops when the context is cancelled.
func (l *TokenBucketLimiter) startRefillTimer(ctx context.Context) {
	ticker := time.NewTicker(refillInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// refill adds tokens to the bucket up to max capacity.
func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldTokens := l.availableTokens
	l.availableTokens += l.tokensPerRefill

	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}

	if l.availableTokens != oldTokens {
		logx.Debugf("ratelimit: %s bucket refilled: %d -> %d tokens (max: %d)",
			l.provider, oldTokens, l.availableTokens, l.maxCapacity)
	}
}

// GetStats returns current limiter statistics (thread-safe).
func (l *TokenBucketLimiter) GetStats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Provider:            l.provider,
		AvailableTokens:     l.availableTokens,
		MaxCapacity:         l.maxCapacity,
		ActiveRequests:      l.activeRequests,
		MaxConcurrency:      l.maxConcurrency,
		TokenLimitHits:      l.tokenLimitHits,
		ConcurrencyHits:     l.concurrencyHits,
		TrackedAcquisitions: len(l.acquisitions),
	}
}

// ProviderLimiterMap manages rate limiters keyed by provider name.
type ProviderLimiterMap struct {
	limiters map[string]*TokenBucketLimiter
	ctx      context.Context //nolint:containedctx // Refill timer lifecycle
	cancel   context.CancelFunc
}

// NewProviderLimiterMap creates limiters for each configured provider and
// starts their refill timers.
func NewProviderLimiterMap(ctx context.Context, configs map[string]Config, requestTimeout time.Duration) *ProviderLimiterMap {
	ctx, cancel := context.WithCancel(ctx)

	limiters := make(map[string]*TokenBucketLimiter)
	for provider, cfg := range configs {
		limiter := NewTokenBucketLimiter(provider, cfg, requestTimeout)
		limiter.startRefillTimer(ctx)
		limiters[provider] = limiter
	}

	return &ProviderLimiterMap{
		limiters: limiters,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Stop cancels all refill timers.
func (p *ProviderLimiterMap) Stop() {
	p.cancel()
}

// GetLimiter returns the rate limiter for a provider.
func (p *ProviderLimiterMap) GetLimiter(provider string) (Limiter, error) {
	limiter, exists := p.limiters[provider]
	if !exists {
		return nil, fmt.Errorf("no rate limiter configured for provider %s", provider)
	}
	return limiter, nil
}

// GetAllStats returns statistics for all provider limiters.
func (p *ProviderLimiterMap) GetAllStats() map[string]LimiterStats {
	stats := make(map[string]LimiterStats)
	for provider, limiter := range p.limiters {
		stats[provider] = limiter.GetStats()
	}
	return stats
}
