package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunResolver периодически проверяет открытые утверждения на истечение
// окна разрешения и дорасчитывает утверждения, застрявшие в Resolving.
// Блокируется до отмены ctx.
func (s *Service) RunResolver(ctx context.Context) error {
	interval := s.opts.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}

	s.resolveBatch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.resolveBatch(ctx)
		}
	}
}

func (s *Service) resolveBatch(ctx context.Context) {
	recovered, err := s.consensus.Recover(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("recover resolving claims", zap.Error(err))
	}

	resolved, err := s.consensus.Scan(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("scan open claims", zap.Error(err))
	}

	if recovered > 0 || resolved > 0 {
		s.logger.Info("resolver pass",
			zap.Int("recovered", recovered),
			zap.Int("resolved", resolved),
		)
	}
}
