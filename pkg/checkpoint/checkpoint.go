package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/window"
)

const (
	latestName    = "latest.json"
	snapshotGlob  = "crawl-*.json"
	formatVersion = 1
)

// Snapshot is the saved outcome of one crawl run
type Snapshot struct {
	RunID     string                `json:"run_id"`
	Period    window.Period         `json:"period"`
	Cutoff    int64                 `json:"cutoff"`
	Success   bool                  `json:"success"`
	Error     string                `json:"error,omitempty"`
	Members   []models.AuthorRecord `json:"members"`
	CreatedAt time.Time             `json:"created_at"`
	Version   int                   `json:"version"`
}

// Manager reads and writes crawl snapshots in one directory
type Manager struct {
	dir    string
	logger logger.Logger
}

// NewManager creates the snapshot directory if needed
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory is not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{dir: dir, logger: log.WithField("component", "checkpoint")}, nil
}

// Dir returns the snapshot directory
func (m *Manager) Dir() string {
	return m.dir
}

// Save writes s as crawl-<runID>.json and as latest.json
func (m *Manager) Save(s *Snapshot) error {
	if s.RunID == "" {
		return fmt.Errorf("snapshot has no run id")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.Version = formatVersion

	if err := m.writeAtomic(m.pathFor(s.RunID), s); err != nil {
		return err
	}
	if err := m.writeAtomic(filepath.Join(m.dir, latestName), s); err != nil {
		return err
	}

	m.logger.InfoWithFields("Crawl snapshot saved", map[string]interface{}{
		"run_id":  s.RunID,
		"members": len(s.Members),
		"dir":     m.dir,
	})
	return nil
}

// Latest loads the most recent snapshot. It returns nil, nil when no crawl
// has been saved yet.
func (m *Manager) Latest() (*Snapshot, error) {
	return m.load(filepath.Join(m.dir, latestName))
}

// Load loads the snapshot of one run
func (m *Manager) Load(runID string) (*Snapshot, error) {
	s, err := m.load(m.pathFor(runID))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("no snapshot for run %s", runID)
	}
	return s, nil
}

// List summarizes every saved snapshot, newest first
func (m *Manager) List() ([]Summary, error) {
	paths, err := filepath.Glob(filepath.Join(m.dir, snapshotGlob))
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(paths))
	for _, p := range paths {
		s, err := m.load(p)
		if err != nil || s == nil {
			m.logger.WithError(err).WithField("path", p).Warn("Skipping unreadable snapshot")
			continue
		}
		summaries = append(summaries, Summary{
			RunID:     s.RunID,
			Period:    s.Period,
			Members:   len(s.Members),
			Success:   s.Success,
			CreatedAt: s.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Summary describes a snapshot without its member list
type Summary struct {
	RunID     string
	Period    window.Period
	Members   int
	Success   bool
	CreatedAt time.Time
}

// Delete removes the snapshot of one run. latest.json is left alone.
func (m *Manager) Delete(runID string) error {
	if err := os.Remove(m.pathFor(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (m *Manager) pathFor(runID string) string {
	return filepath.Join(m.dir, "crawl-"+strings.ReplaceAll(runID, string(filepath.Separator), "_")+".json")
}

func (m *Manager) load(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	var s Snapshot
	if err := json.NewDecoder(file).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// writeAtomic writes through a temp file so readers never see a partial file
func (m *Manager) writeAtomic(path string, v interface{}) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Select applies --only / --skip style curation to a member list. An empty
// only list keeps everyone; skip always wins.
func Select(members []models.AuthorRecord, only, skip []string) []models.AuthorRecord {
	onlySet := toSet(only)
	skipSet := toSet(skip)

	out := make([]models.AuthorRecord, 0, len(members))
	for _, m := range members {
		if len(onlySet) > 0 && !matches(onlySet, m) {
			continue
		}
		if matches(skipSet, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				set[part] = struct{}{}
			}
		}
	}
	return set
}

// matches accepts either the member key or the nickname
func matches(set map[string]struct{}, m models.AuthorRecord) bool {
	if _, ok := set[m.MemberKey]; ok {
		return true
	}
	_, ok := set[m.Nickname]
	return ok && m.Nickname != ""
}
