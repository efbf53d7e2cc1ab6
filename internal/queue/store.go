package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rand-hawk/youtube-downloader/internal/model"
)

const stateFilePerm = 0644

// DefaultStateFile is the queue state file kept beside config.json.
const DefaultStateFile = "queue.json"

// Store persists the download queue to a JSON state file so pending and
// stopped items survive restarts. The download service owns the live tasks;
// the store only serializes snapshots of them.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a queue store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted queue. A missing file yields an empty queue.
// Items that were active when the process last exited are re-queued as
// Pending so they resume over their .part files.
func (s *Store) Load() ([]*model.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue state: %w", err)
	}

	var tasks []*model.DownloadTask
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("parse queue state %s: %w", s.path, err)
	}

	for _, task := range tasks {
		if task.Status.IsActive() {
			task.Status = model.TaskStatusPending
			task.Speed = ""
			task.ETASec = -1
		}
	}
	return tasks, nil
}

// Save writes a queue snapshot atomically (temp file + rename), so a crash
// mid-write never corrupts the previous state.
func (s *Store) Save(tasks []*model.DownloadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, stateFilePerm); err != nil {
		return fmt.Errorf("write queue state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace queue state: %w", err)
	}
	return nil
}
