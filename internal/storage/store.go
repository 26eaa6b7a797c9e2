package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dreamwright/internal/domain"
)

const (
	projectFile = "project.json"
	assetsDir   = "assets"
	backupDir   = ".backup"
)

// Store persists one project and its generated assets onto the local
// filesystem: project.json at the root, binary artifacts plus sidecar
// metadata files under assets/.
type Store struct {
	basePath string
}

// NewStore initializes a Store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *Store) BasePath() string { return s.basePath }

// AssetsPath returns the root directory for generated assets.
func (s *Store) AssetsPath() string { return filepath.Join(s.basePath, assetsDir) }

// Initialize creates the directory structure for a new project.
func (s *Store) Initialize() error {
	for _, sub := range []string{"characters", "locations", "panels"} {
		if err := os.MkdirAll(filepath.Join(s.AssetsPath(), sub), 0o755); err != nil {
			return fmt.Errorf("storage: ensure asset directory: %w", err)
		}
	}
	return nil
}

// ProjectExists reports whether a project file is present.
func (s *Store) ProjectExists() bool {
	_, err := os.Stat(filepath.Join(s.basePath, projectFile))
	return err == nil
}

// SaveProject writes the project file atomically (tmp + rename) and bumps
// its updated timestamp.
func (s *Store) SaveProject(p *domain.Project) error {
	p.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode project: %w", err)
	}

	final := filepath.Join(s.basePath, projectFile)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write project: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("storage: replace project: %w", err)
	}
	return nil
}

// LoadProject reads the project file.
func (s *Store) LoadProject() (*domain.Project, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, projectFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.NotFoundError{Resource: "Project", ID: s.basePath}
		}
		return nil, fmt.Errorf("storage: read project: %w", err)
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("storage: decode project: %w", err)
	}
	return &p, nil
}

// AbsoluteAssetPath resolves a relative asset key to an absolute path.
func (s *Store) AbsoluteAssetPath(key string) string {
	return filepath.Join(s.AssetsPath(), filepath.FromSlash(key))
}

// AssetExists reports whether the file behind an asset key is present.
// An empty key is never present.
func (s *Store) AssetExists(key string) bool {
	if key == "" {
		return false
	}
	_, err := os.Stat(s.AbsoluteAssetPath(key))
	return err == nil
}

// SaveAsset persists binary data under assets/<key> with an optional sidecar
// metadata file next to it. An existing artifact (and its sidecar) is copied
// into a timestamped .backup/ folder before being replaced. Returns the
// canonicalized asset key.
func (s *Store) SaveAsset(ctx context.Context, key string, data []byte, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}

	fullPath := s.AbsoluteAssetPath(cleanKey)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}

	backupFile(fullPath)
	backupFile(SidecarPath(fullPath))

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write asset: %w", err)
	}

	if metadata != nil {
		if err := s.writeSidecar(fullPath, metadata); err != nil {
			return "", err
		}
	}
	return cleanKey, nil
}

// AssetMetadata reads the sidecar metadata for an asset key. Returns a nil
// map without error when no sidecar exists; a corrupt sidecar is an error.
func (s *Store) AssetMetadata(key string) (map[string]any, error) {
	data, err := os.ReadFile(SidecarPath(s.AbsoluteAssetPath(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read sidecar: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: decode sidecar: %w", err)
	}
	return meta, nil
}

func (s *Store) writeSidecar(assetPath string, metadata map[string]any) error {
	metadata["generated_at"] = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode sidecar: %w", err)
	}
	if err := os.WriteFile(SidecarPath(assetPath), data, 0o644); err != nil {
		return fmt.Errorf("storage: write sidecar: %w", err)
	}
	return nil
}

// PanelAssetKey builds the canonical relative key for a panel artifact.
func PanelAssetKey(chapter, scene, panel int) string {
	return fmt.Sprintf("panels/chapter-%d/scene-%d/panel-%d.png", chapter, scene, panel)
}

// SidecarPath swaps an artifact path's extension for .json.
func SidecarPath(assetPath string) string {
	ext := filepath.Ext(assetPath)
	return strings.TrimSuffix(assetPath, ext) + ".json"
}

// backupFile copies an existing file into a sibling .backup directory with a
// timestamp suffix. Best-effort: failures are ignored, the write proceeds.
func backupFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	dir := filepath.Join(filepath.Dir(path), backupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
	_ = os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
