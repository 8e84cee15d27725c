package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper expires overdue requests every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.ExpireOverdue(ctx)
			if err != nil {
				s.log.Error("sweep", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("sweep", zap.Int("expired", n))
			}
		}
	}
}
