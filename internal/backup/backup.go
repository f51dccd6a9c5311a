// Package backup takes periodic snapshots of the local document database
// and prunes old ones.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const filePrefix = "televet_"

// Snapshotter writes a consistent copy of a database to a new file.
type Snapshotter interface {
	Backup(ctx context.Context, dest string) error
}

type Config struct {
	Enabled       bool
	Interval      time.Duration
	Dir           string
	RetentionDays int
}

type Service struct {
	source Snapshotter
	cfg    Config
	now    func() time.Time
	logger *zerolog.Logger
}

func NewService(source Snapshotter, cfg Config, now func() time.Time, logger *zerolog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{source: source, cfg: cfg, now: now, logger: logger}
}

// Start takes a snapshot right away and then every interval until ctx ends.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.cfg.Interval).Str("dir", s.cfg.Dir).Msg("Backup service started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Service) run(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	if _, err := s.CleanupOldBackups(); err != nil {
		s.logger.Error().Err(err).Msg("Backup cleanup failed")
	}
}

// PerformBackup writes one snapshot and returns its path.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", filePrefix, s.now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.Dir, name)

	s.logger.Info().Str("path", path).Msg("Performing database backup")
	if err := s.source.Backup(ctx, path); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups deletes snapshots older than the retention period and
// returns how many were removed. Other files in the directory are kept.
func (s *Service) CleanupOldBackups() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), filePrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
		if err := os.Remove(filepath.Join(s.cfg.Dir, file.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed, nil
}
