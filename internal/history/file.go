package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "taskward/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON record per
// line, appended after every attempt. When Keep is set the file is pruned
// back to the newest Keep records on open and periodically afterwards.
type fileStore struct {
	log  logx.Logger
	path string
	keep int

	mu     sync.Mutex
	file   *os.File
	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, keep: cfg.Keep}
	if err := s.pruneLocked(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("history prune failed", logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.file = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("history file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.keep > 0 && s.writes%64 == 0 {
		// Best-effort; a failed prune never fails the append.
		if err := s.pruneLocked(); err != nil {
			s.log.Debug("history prune failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, user string, limit int) ([]RunRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = defaultRecent
	}
	user = strings.TrimSpace(user)

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := readRuns(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var match []RunRecord
	for _, r := range all {
		if user != "" && !strings.EqualFold(r.User, user) {
			continue
		}
		match = append(match, r)
	}
	if len(match) > limit {
		match = match[len(match)-limit:]
	}
	// Newest first.
	for i, j := 0, len(match)-1; i < j; i, j = i+1, j-1 {
		match[i], match[j] = match[j], match[i]
	}
	return match, nil
}

// pruneLocked rewrites the file with only the newest keep records.
// The caller holds s.mu (or, during open, has exclusive access).
func (s *fileStore) pruneLocked() error {
	if s.keep <= 0 {
		return nil
	}
	all, err := readRuns(s.path)
	if err != nil {
		return err
	}
	if len(all) <= s.keep {
		return nil
	}
	all = all[len(all)-s.keep:]

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range all {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	// The rename detached any open append handle; reattach.
	if s.file != nil {
		_ = s.file.Close()
		nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			s.file = nil
			return err
		}
		s.file = nf
	}
	return nil
}

func readRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.User == "" && r.Task == "" {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
