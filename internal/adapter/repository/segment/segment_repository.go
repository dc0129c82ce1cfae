package segment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/logflow/internal/domain"
)

const (
	segmentPrefix = "debug-"
	segmentSuffix = ".ndjson"
	filePerm      = 0644
	maxLineSize   = 4 << 20
)

// SegmentRepository is an append-only NDJSON event log split into size-bounded
// segment files. When the directory exceeds its disk budget the oldest
// segments are removed.
type SegmentRepository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	totalSize      int64
	seq            int
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*SegmentRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory %s: %w", dir, err)
	}

	s := &SegmentRepository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "segment_repository"),
	}

	total, err := s.calculateTotalSize()
	if err != nil {
		return nil, err
	}
	s.totalSize = total

	if err := s.openLatestSegment(); err != nil {
		return nil, err
	}

	return s, nil
}

// Write appends an event to the current segment.
func (s *SegmentRepository) Write(ctx context.Context, event domain.LogEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal log event for segment: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSegment == nil {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	n, err := s.currentSegment.Write(data)
	s.currentSize += int64(n)
	s.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to segment: %w", err)
	}

	if s.currentSize >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("Failed to rotate segment", "error", err)
		}
	}
	if s.totalSize > s.maxTotalSize {
		s.enforceRetention()
	}

	return nil
}

// Replay reads all segments oldest first and calls the handler for each event.
// Lines that do not decode are skipped.
func (s *SegmentRepository) Replay(ctx context.Context, handler func(event domain.LogEvent) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSegment != nil {
		if err := s.currentSegment.Sync(); err != nil {
			s.logger.Warn("Failed to sync segment before replay", "error", err)
		}
	}

	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		s.logger.Info("No debug segments, nothing to replay")
		return nil
	}
	s.logger.Info("Starting segment replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := s.replayFile(ctx, segmentPath, handler); err != nil {
			return err
		}
	}

	s.logger.Info("Segment replay completed")
	return nil
}

func (s *SegmentRepository) replayFile(ctx context.Context, path string, handler func(event domain.LogEvent) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var event domain.LogEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			s.logger.Warn("Failed to unmarshal event from segment, skipping", "error", err, "path", path)
			continue
		}
		if err := handler(event); err != nil {
			s.logger.Error("Replay handler failed, stopping replay", "error", err)
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes all segment files and starts a fresh one.
func (s *SegmentRepository) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSegment != nil {
		s.currentSegment.Close()
		s.currentSegment = nil
	}

	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}

	for _, segmentPath := range segments {
		if err := os.Remove(segmentPath); err != nil {
			s.logger.Error("Failed to remove segment", "path", segmentPath, "error", err)
		}
	}
	s.totalSize = 0

	s.logger.Info("Segments truncated")
	return s.rotate()
}

func (s *SegmentRepository) rotate() error {
	if s.currentSegment != nil {
		if err := s.currentSegment.Sync(); err != nil {
			s.logger.Error("Failed to sync segment before rotating", "error", err)
		}
		if err := s.currentSegment.Close(); err != nil {
			s.logger.Error("Failed to close segment before rotating", "error", err)
		}
		s.currentSegment = nil
	}

	s.seq++
	segmentName := fmt.Sprintf("%s%020d-%06d%s", segmentPrefix, time.Now().UnixNano(), s.seq, segmentSuffix)
	path := filepath.Join(s.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new segment %s: %w", path, err)
	}

	s.currentSegment = f
	s.currentPath = path
	s.currentSize = 0
	s.logger.Debug("Rotated to new segment", "path", path)
	return nil
}

// enforceRetention removes the oldest closed segments until the directory
// fits its budget. The active segment is never removed.
func (s *SegmentRepository) enforceRetention() {
	segments, err := s.getSortedSegments()
	if err != nil {
		s.logger.Error("Failed to list segments for retention", "error", err)
		return
	}
	for _, path := range segments {
		if s.totalSize <= s.maxTotalSize || path == s.currentPath {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Error("Failed to remove old segment", "path", path, "error", err)
			continue
		}
		s.totalSize -= info.Size()
		s.logger.Info("Removed old segment to stay within disk budget", "path", path, "size", info.Size())
	}
}

func (s *SegmentRepository) openLatestSegment() error {
	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		return s.rotate()
	}

	latestSegmentPath := segments[len(segments)-1]
	stat, err := os.Stat(latestSegmentPath)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latestSegmentPath, err)
	}

	f, err := os.OpenFile(latestSegmentPath, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latestSegmentPath, err)
	}

	s.currentSegment = f
	s.currentPath = latestSegmentPath
	s.currentSize = stat.Size()
	s.logger.Info("Opened existing segment", "path", latestSegmentPath, "size", s.currentSize)

	if s.currentSize >= s.maxSegmentSize {
		return s.rotate()
	}

	return nil
}

func (s *SegmentRepository) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if isSegment(entry) {
			segments = append(segments, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (s *SegmentRepository) calculateTotalSize() (int64, error) {
	var totalSize int64
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if isSegment(entry) {
			info, err := entry.Info()
			if err != nil {
				return 0, err
			}
			totalSize += info.Size()
		}
	}
	return totalSize, nil
}

func isSegment(entry os.DirEntry) bool {
	return !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) && strings.HasSuffix(entry.Name(), segmentSuffix)
}

// Close ensures the current segment is closed gracefully.
func (s *SegmentRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSegment != nil {
		err := s.currentSegment.Close()
		s.currentSegment = nil
		return err
	}
	return nil
}
