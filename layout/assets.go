package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tessera/models"
)

// ManifestFile is the per-theme manifest read by ManifestAssets.
const ManifestFile = "theme.yaml"

// AssetSource lists the stylesheets and scripts a theme declares.
type AssetSource interface {
	ThemeAssets(theme *models.Theme) (models.AssetList, error)
}

type manifest struct {
	Name    string           `yaml:"name"`
	Version string           `yaml:"version"`
	Assets  models.AssetList `yaml:"assets"`
}

// ManifestAssets reads <root>/<theme slug>/theme.yaml. A theme without a
// manifest has no assets.
type ManifestAssets struct {
	Root string
}

func (m ManifestAssets) ThemeAssets(theme *models.Theme) (models.AssetList, error) {
	path := filepath.Join(m.Root, theme.Slug, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.AssetList{}, nil
	}
	if err != nil {
		return models.AssetList{}, err
	}
	var mf manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return models.AssetList{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return mf.Assets, nil
}
