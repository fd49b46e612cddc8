package widgets

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type DisplaySettingInput struct {
	Name     string         `json:"name" validate:"required,max=120"`
	ViewMode string         `json:"view_mode" validate:"omitempty,slug"`
	Settings map[string]any `json:"settings"`
}

func (c *Catalog) CreateDisplaySetting(ctx context.Context, in DisplaySettingInput) (*models.WidgetDisplaySetting, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	ds := &models.WidgetDisplaySetting{Name: in.Name, ViewMode: in.ViewMode, Settings: in.Settings}
	if ds.ViewMode == "" {
		ds.ViewMode = "default"
	}
	if err := c.db.WithContext(ctx).Create(ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

func (c *Catalog) UpdateDisplaySetting(ctx context.Context, id uint, in DisplaySettingInput) (*models.WidgetDisplaySetting, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	ds, err := c.GetDisplaySetting(ctx, id)
	if err != nil {
		return nil, err
	}
	ds.Name = in.Name
	if in.ViewMode != "" {
		ds.ViewMode = in.ViewMode
	}
	ds.Settings = in.Settings
	if err := c.db.WithContext(ctx).Save(ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

func (c *Catalog) GetDisplaySetting(ctx context.Context, id uint) (*models.WidgetDisplaySetting, error) {
	var ds models.WidgetDisplaySetting
	err := c.db.WithContext(ctx).First(&ds, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("display setting", id)
	}
	return &ds, err
}

func (c *Catalog) ListDisplaySettings(ctx context.Context) ([]models.WidgetDisplaySetting, error) {
	var list []models.WidgetDisplaySetting
	err := c.db.WithContext(ctx).Order("name ASC").Find(&list).Error
	return list, err
}

// DeleteDisplaySetting refuses settings still referenced by a widget.
func (c *Catalog) DeleteDisplaySetting(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ds models.WidgetDisplaySetting
		if err := tx.First(&ds, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("display setting", id)
			}
			return err
		}
		var used int64
		if err := tx.Model(&models.Widget{}).Where("display_settings_id = ?", id).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return &common.InUseError{Resource: "display setting " + ds.Name, Blocker: "widgets", Count: used}
		}
		return tx.Delete(&ds).Error
	})
}
