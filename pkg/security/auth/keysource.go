package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/taskstream/backend/pkg/logger"
)

// ErrKeyUnavailable means no verification key is cached and every key
// source failed. Verification cannot proceed until a fetch succeeds.
var ErrKeyUnavailable = errors.New("verification key unavailable")

// KeySource fetches public-key material from an ordered list of identity
// service endpoints. Each endpoint sits behind its own circuit breaker so a
// dead one is skipped quickly instead of eating the fetch timeout on every
// verification attempt.
type KeySource struct {
	endpoints []string
	breakers  []*gobreaker.CircuitBreaker
	client    *http.Client
	logger    *logger.Logger
}

func NewKeySource(endpoints []string, timeout time.Duration, log *logger.Logger) *KeySource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breakers := make([]*gobreaker.CircuitBreaker, len(endpoints))
	for i, endpoint := range endpoints {
		endpoint := endpoint
		breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "key-source:" + endpoint,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("key source circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return &KeySource{
		endpoints: endpoints,
		breakers:  breakers,
		client:    &http.Client{Timeout: timeout},
		logger:    log,
	}
}

// Fetch returns the first non-empty body served by the configured
// endpoints, in order. All endpoints failing yields ErrKeyUnavailable.
func (s *KeySource) Fetch(ctx context.Context) ([]byte, error) {
	if len(s.endpoints) == 0 {
		return nil, fmt.Errorf("%w: no key endpoints configured", ErrKeyUnavailable)
	}

	for i, endpoint := range s.endpoints {
		body, err := s.breakers[i].Execute(func() (interface{}, error) {
			return s.fetchOne(ctx, endpoint)
		})
		if err != nil {
			s.logger.Warn("key source attempt failed",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			continue
		}
		return body.([]byte), nil
	}

	return nil, ErrKeyUnavailable
}

func (s *KeySource) fetchOne(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("key source returned empty body")
	}
	return body, nil
}
