package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
)

const currentVersion = 1

// Checkpoint is how far platform pagination got for one account
type Checkpoint struct {
	Biz       string    `json:"biz"`
	Strategy  string    `json:"strategy"`
	Begin     int       `json:"begin"`
	Pages     int       `json:"pages"`
	Total     int       `json:"total"`
	Collected int       `json:"collected"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Manager handles the checkpoint file of one account
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// fileName maps a biz value onto a portable file name
var fileName = strings.NewReplacer("/", "_", "+", "-", "=", "")

// NewManager creates a manager for biz, storing its file under dir
func NewManager(dir, biz string, log logger.Logger) (*Manager, error) {
	if biz == "" {
		return nil, fmt.Errorf("checkpoint needs an account biz")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fileName.Replace(biz)+".checkpoint.json"),
		logger:         log,
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint at offset zero
func (m *Manager) Create(biz, strategy string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Biz:       biz,
		Strategy:  strategy,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	return cp, nil
}

// Load reads the checkpoint. A missing file yields nil without error.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"biz":        cp.Biz,
		"begin":      cp.Begin,
		"collected":  cp.Collected,
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	if cp.Version == 0 {
		cp.Version = currentVersion
	}

	err := storage.WriteFileAtomic(m.checkpointPath, 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"biz":   cp.Biz,
		"begin": cp.Begin,
	})
	return nil
}

// Advance records a processed page and the offset of the next one
func (m *Manager) Advance(cp *Checkpoint, nextBegin, total, received int) error {
	cp.Begin = nextBegin
	cp.Total = total
	cp.Pages++
	cp.Collected += received
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}
