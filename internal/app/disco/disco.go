// Package disco answers feature questions about remote entities, caching what
// the network told us.
package disco

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/app/queue"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type Service struct {
	q       core.CapabilityQuerier
	timeout time.Duration

	mu    sync.RWMutex
	cache map[domain.Address]domain.FeatureSet

	worker *queue.Worker[domain.Address]
	logger zerolog.Logger
}

func New(q core.CapabilityQuerier, timeout time.Duration) *Service {
	s := &Service{
		q:       q,
		timeout: timeout,
		cache:   make(map[domain.Address]domain.FeatureSet),
		logger:  log.With().Str("module", "disco").Logger(),
	}
	s.worker = queue.New("disco-retriever", func(ctx context.Context, entity domain.Address) {
		if _, err := s.Capabilities(ctx, entity); err != nil {
			s.logger.Debug().Err(err).Str("entity", string(entity)).Msg("prefetch failed")
		}
	})
	return s
}

// Capabilities returns the cached feature set of entity, querying on a miss.
func (s *Service) Capabilities(ctx context.Context, entity domain.Address) (domain.FeatureSet, error) {
	s.mu.RLock()
	fs, ok := s.cache[entity]
	s.mu.RUnlock()
	if ok {
		return fs, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	fs, err := s.q.QueryCapabilities(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("query capabilities of %s: %w", entity, err)
	}
	s.mu.Lock()
	s.cache[entity] = fs
	s.mu.Unlock()
	return fs, nil
}

// SupportsFeature reports false whenever the answer is not known.
func (s *Service) SupportsFeature(entity domain.Address, feature string) bool {
	fs, err := s.Capabilities(context.Background(), entity)
	if err != nil {
		s.logger.Warn().Err(err).Str("feature", feature).Msg("feature check failed")
		return false
	}
	return fs.Has(feature)
}

// Prefetch queues a background query for entity.
func (s *Service) Prefetch(entity domain.Address) bool {
	s.mu.RLock()
	_, ok := s.cache[entity]
	s.mu.RUnlock()
	if ok {
		return false
	}
	return s.worker.Enqueue(entity)
}

// Forget drops the cached answer, e.g. when the entity goes offline.
func (s *Service) Forget(entity domain.Address) {
	s.mu.Lock()
	delete(s.cache, entity)
	s.mu.Unlock()
}

func (s *Service) Run(ctx context.Context) error {
	return s.worker.Run(ctx)
}
