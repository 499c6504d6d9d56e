// Package frames provides access to an extracted frame sequence on disk.
// Frames are immutable once extracted; the store memoizes content hashes
// so fingerprinting a large sequence reads each frame at most once.
package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"vidstyle/internal/fingerprint"
)

var frameNameRe = regexp.MustCompile(`^frame_(\d+)\.(png|jpg|jpeg)$`)

// FrameName returns the canonical file name for a frame index.
func FrameName(index int) string {
	return fmt.Sprintf("frame_%05d.png", index)
}

// Store reads frames from a directory of frame_NNNNN.png files.
type Store struct {
	dir     string
	paths   map[int]string
	indices []int

	mu     sync.Mutex
	hashes map[int]string
}

// Open scans dir for numbered frame files.
func Open(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	paths := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := frameNameRe.FindStringSubmatch(strings.ToLower(entry.Name()))
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if _, dup := paths[index]; dup {
			return nil, fmt.Errorf("duplicate frame index %d in %s", index, dir)
		}
		paths[index] = filepath.Join(dir, entry.Name())
	}

	indices := make([]int, 0, len(paths))
	for index := range paths {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	return &Store{
		dir:     dir,
		paths:   paths,
		indices: indices,
		hashes:  make(map[int]string),
	}, nil
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string { return s.dir }

// Count returns the number of frames found.
func (s *Store) Count() int { return len(s.indices) }

// Indices returns frame indices in increasing order.
func (s *Store) Indices() []int {
	cp := make([]int, len(s.indices))
	copy(cp, s.indices)
	return cp
}

// Validate checks the sequence is contiguous from zero, which the schedule
// and assembler both rely on. Returns an error naming the missing indices.
func (s *Store) Validate() error {
	if len(s.indices) == 0 {
		return fmt.Errorf("no frames found in %s", s.dir)
	}
	var missing []string
	next := 0
	for _, index := range s.indices {
		for next < index {
			missing = append(missing, strconv.Itoa(next))
			next++
			if len(missing) > 10 {
				return fmt.Errorf("frame sequence in %s has more than 10 gaps, first missing: %s", s.dir, strings.Join(missing[:10], ", "))
			}
		}
		next = index + 1
	}
	if len(missing) > 0 {
		return fmt.Errorf("frame sequence in %s missing indices: %s", s.dir, strings.Join(missing, ", "))
	}
	return nil
}

// Path returns the on-disk path for a frame index.
func (s *Store) Path(index int) (string, error) {
	path, ok := s.paths[index]
	if !ok {
		return "", fmt.Errorf("frame %d not found in %s", index, s.dir)
	}
	return path, nil
}

// Read returns the raw bytes of a frame.
func (s *Store) Read(index int) ([]byte, error) {
	path, err := s.Path(index)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", index, err)
	}
	return data, nil
}

// ContentHash returns the hex content hash of a frame, computed at most once.
func (s *Store) ContentHash(index int) (string, error) {
	s.mu.Lock()
	if hash, ok := s.hashes[index]; ok {
		s.mu.Unlock()
		return hash, nil
	}
	s.mu.Unlock()

	data, err := s.Read(index)
	if err != nil {
		return "", err
	}
	hash := fingerprint.HashBytes(data)

	s.mu.Lock()
	s.hashes[index] = hash
	s.mu.Unlock()
	return hash, nil
}

// WriteFrame writes frame bytes into dir under the canonical name,
// atomically via a temp file so readers never observe partial frames.
func WriteFrame(dir string, index int, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	final := filepath.Join(dir, FrameName(index))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write frame %d: %w", index, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename frame %d: %w", index, err)
	}
	return nil
}
