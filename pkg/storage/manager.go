package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wxarchiver/pkg/logger"
)

const (
	articlesDirName = "articles"
	assetsDirName   = "assets"
	metaFileName    = "meta.json"
)

// ArticleMeta is the authoritative record of one archived article
type ArticleMeta struct {
	ArticleID   string `json:"article_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	AccountName string `json:"account_name"`
	PublishTime string `json:"publish_time"`
	FetchedAt   string `json:"fetched_at"`
	Completed   bool   `json:"completed"`
	ImageCount  int    `json:"image_count"`
	Dir         string `json:"dir"`
}

// PlacementAction describes how an article directory was chosen
type PlacementAction string

const (
	PlacementCreated  PlacementAction = "created"
	PlacementKept     PlacementAction = "kept"
	PlacementRenamed  PlacementAction = "renamed"
	PlacementReplaced PlacementAction = "replaced"
	// PlacementConflict means the desired name belongs to another article, so the
	// existing directory was kept under its old name.
	PlacementConflict PlacementAction = "conflict"
)

// Placement is the outcome of PlaceArticleDir
type Placement struct {
	Dir    string
	Action PlacementAction
}

// Manager owns the on-disk archive layout under one root directory
type Manager struct {
	root   string
	logger logger.Logger
}

// NewManager creates a new archive manager, creating the root if needed
func NewManager(root string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(filepath.Join(root, articlesDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{root: root, logger: log}, nil
}

// Root returns the archive root
func (m *Manager) Root() string {
	return m.root
}

// ArticlesDir returns the directory holding one subdirectory per article
func (m *Manager) ArticlesDir() string {
	return filepath.Join(m.root, articlesDirName)
}

// AssetsDir returns the image directory of one article
func (m *Manager) AssetsDir(articleID string) string {
	return filepath.Join(m.root, assetsDirName, articleID)
}

// scanMeta calls fn for every readable meta.json under articles/, in directory name order.
// Unreadable or malformed files are logged and skipped. fn returns false to stop.
func (m *Manager) scanMeta(fn func(dir string, meta *ArticleMeta) bool) error {
	entries, err := os.ReadDir(m.ArticlesDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read articles directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.ArticlesDir(), entry.Name())
		meta, err := LoadMeta(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				m.logger.WarnWithFields("Skipping unreadable article metadata", map[string]interface{}{
					"dir":   entry.Name(),
					"error": err.Error(),
				})
			}
			continue
		}
		if !fn(dir, meta) {
			return nil
		}
	}
	return nil
}

// CompletedIDs returns the identifiers of every article whose metadata marks it complete
func (m *Manager) CompletedIDs() (map[string]struct{}, error) {
	completed := make(map[string]struct{})
	err := m.scanMeta(func(_ string, meta *ArticleMeta) bool {
		if meta.Completed && meta.ArticleID != "" {
			completed[meta.ArticleID] = struct{}{}
		}
		return true
	})
	return completed, err
}

// FindArticleDir locates the directory whose metadata carries articleID
func (m *Manager) FindArticleDir(articleID string) (string, bool) {
	var found string
	_ = m.scanMeta(func(dir string, meta *ArticleMeta) bool {
		if meta.ArticleID == articleID {
			found = dir
			return false
		}
		return true
	})
	return found, found != ""
}

// EnsureUniqueDir returns a path under articles/ for name that does not exist yet,
// trying name, name_2 ... name_999, then a hash-suffixed name.
func (m *Manager) EnsureUniqueDir(name string) string {
	base := m.ArticlesDir()
	target := filepath.Join(base, name)
	if !exists(target) {
		return target
	}
	for i := 2; i < 1000; i++ {
		candidate := filepath.Join(base, fmt.Sprintf("%s_%d", name, i))
		if !exists(candidate) {
			return candidate
		}
	}
	sum := sha1.Sum([]byte(name))
	return filepath.Join(base, name+"_"+hex.EncodeToString(sum[:])[:8])
}

// PlaceArticleDir decides, in one place, where the article identified by articleID lives:
//
//   - no directory carries this identifier: allocate a fresh unique one
//   - the existing directory already has the desired name: keep it
//   - the desired name is free: rename the existing directory to it
//   - the desired name holds another article's valid metadata: keep the existing directory
//   - the desired name holds anything else: remove it, then rename
//
// The returned directory exists on return.
func (m *Manager) PlaceArticleDir(articleID, desired string) (Placement, error) {
	existing, found := m.FindArticleDir(articleID)
	if !found {
		dir := m.EnsureUniqueDir(desired)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Placement{}, fmt.Errorf("failed to create article directory: %w", err)
		}
		return Placement{Dir: dir, Action: PlacementCreated}, nil
	}

	target := filepath.Join(m.ArticlesDir(), desired)
	if filepath.Base(existing) == desired {
		return Placement{Dir: existing, Action: PlacementKept}, nil
	}

	if !exists(target) {
		if err := os.Rename(existing, target); err != nil {
			return Placement{}, fmt.Errorf("failed to rename article directory: %w", err)
		}
		return Placement{Dir: target, Action: PlacementRenamed}, nil
	}

	if occupant, err := LoadMeta(target); err == nil && occupant.ArticleID != "" && occupant.ArticleID != articleID {
		m.logger.WarnWithFields("Directory name taken by another article, keeping existing directory", map[string]interface{}{
			"article_id": articleID,
			"dir":        filepath.Base(existing),
			"desired":    desired,
			"occupant":   occupant.ArticleID,
		})
		return Placement{Dir: existing, Action: PlacementConflict}, nil
	}

	if err := os.RemoveAll(target); err != nil {
		return Placement{}, fmt.Errorf("failed to clear occupied directory: %w", err)
	}
	if err := os.Rename(existing, target); err != nil {
		return Placement{}, fmt.Errorf("failed to rename article directory: %w", err)
	}
	return Placement{Dir: target, Action: PlacementReplaced}, nil
}

// SaveMeta atomically writes meta.json into dir
func (m *Manager) SaveMeta(dir string, meta *ArticleMeta) error {
	return WriteFileAtomic(filepath.Join(dir, metaFileName), 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
}

// LoadMeta reads meta.json from dir. A file without an article_id is malformed.
func LoadMeta(dir string) (*ArticleMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, err
	}
	var meta ArticleMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", metaFileName, err)
	}
	if meta.ArticleID == "" {
		return nil, fmt.Errorf("malformed %s: missing article_id", metaFileName)
	}
	return &meta, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
