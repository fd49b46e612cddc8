package models

import (
	"time"

	"gorm.io/datatypes"
)

// SiteSetting is a singleton row (ID 1). ActiveThemeID is the only source of
// truth for which theme is active; Theme.IsActive mirrors it.
type SiteSetting struct {
	ID            uint  `gorm:"primary_key"`
	ActiveThemeID *uint `json:"active_theme_id"`
	UpdatedAt     time.Time
}

type ContentType struct {
	ID          uint               `gorm:"primary_key;autoIncrement" json:"id"`
	Key         string             `gorm:"unique;not null;index" json:"key"`
	Name        string             `gorm:"not null" json:"name"`
	Description string             `gorm:"type:text" json:"description"`
	IsSystem    bool               `gorm:"default:false" json:"is_system"`
	IsActive    bool               `gorm:"default:true" json:"is_active"`
	Fields      []ContentTypeField `gorm:"foreignKey:ContentTypeID" json:"fields,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type ContentTypeField struct {
	ID              uint              `gorm:"primary_key;autoIncrement" json:"id"`
	ContentTypeID   uint              `gorm:"not null;uniqueIndex:idx_type_field_slug" json:"content_type_id"`
	Slug            string            `gorm:"not null;uniqueIndex:idx_type_field_slug" json:"slug"`
	Name            string            `gorm:"not null" json:"name"`
	FieldType       FieldType         `gorm:"not null" json:"field_type"`
	IsRequired      bool              `gorm:"default:false" json:"is_required"`
	DefaultValue    string            `gorm:"type:text" json:"default_value"`
	ValidationRules string            `json:"validation_rules"`
	Position        int               `gorm:"default:0;index" json:"position"`
	Settings        datatypes.JSONMap `json:"settings"`
	Options         []FieldOption     `gorm:"foreignKey:FieldID" json:"options,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type FieldOption struct {
	ID       uint   `gorm:"primary_key;autoIncrement" json:"id"`
	FieldID  uint   `gorm:"not null;index" json:"field_id"`
	Value    string `gorm:"not null" json:"value"`
	Label    string `json:"label"`
	Position int    `gorm:"default:0" json:"position"`
}

type ContentItem struct {
	ID            uint                `gorm:"primary_key;autoIncrement" json:"id"`
	ContentTypeID uint                `gorm:"not null;index" json:"content_type_id"`
	Title         string              `gorm:"not null" json:"title"`
	Slug          string              `gorm:"unique;not null;index" json:"slug"`
	Status        ItemStatus          `gorm:"not null;default:'draft';index" json:"status"`
	PublishedAt   *time.Time          `gorm:"index" json:"published_at,omitempty"`
	Values        []ContentFieldValue `gorm:"foreignKey:ContentItemID" json:"values,omitempty"`
	CreatedAt     time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ContentFieldValue holds the text encoding of one field value. The
// (content_item_id, field_id) pair is unique.
type ContentFieldValue struct {
	ID            uint      `gorm:"primary_key;autoIncrement" json:"id"`
	ContentItemID uint      `gorm:"not null;uniqueIndex:idx_item_field" json:"content_item_id"`
	FieldID       uint      `gorm:"not null;uniqueIndex:idx_item_field;index" json:"field_id"`
	Value         string    `gorm:"type:text" json:"value"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MediaAttachment is a file tracked by the media store under a named
// collection of an owning entity.
type MediaAttachment struct {
	ID         uint      `gorm:"primary_key;autoIncrement" json:"id"`
	EntityType string    `gorm:"not null;index:idx_media_owner" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_media_owner" json:"entity_id"`
	Collection string    `gorm:"not null;index:idx_media_owner" json:"collection"`
	FileName   string    `gorm:"not null" json:"file_name"`
	Path       string    `gorm:"not null" json:"-"`
	Size       int64     `json:"size"`
	Position   int       `gorm:"default:0" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

type Theme struct {
	ID        uint              `gorm:"primary_key;autoIncrement" json:"id"`
	Slug      string            `gorm:"unique;not null;index" json:"slug"`
	Name      string            `gorm:"not null" json:"name"`
	IsActive  bool              `gorm:"default:false" json:"is_active"`
	Config    datatypes.JSONMap `json:"config"`
	Templates []Template        `gorm:"foreignKey:ThemeID" json:"templates,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type Template struct {
	ID        uint              `gorm:"primary_key;autoIncrement" json:"id"`
	ThemeID   uint              `gorm:"not null;uniqueIndex:idx_theme_template_slug" json:"theme_id"`
	Slug      string            `gorm:"not null;uniqueIndex:idx_theme_template_slug" json:"slug"`
	Name      string            `gorm:"not null" json:"name"`
	IsDefault bool              `gorm:"default:false" json:"is_default"`
	Sections  []TemplateSection `gorm:"foreignKey:TemplateID" json:"sections,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type TemplateSection struct {
	ID                uint                                  `gorm:"primary_key;autoIncrement" json:"id"`
	TemplateID        uint                                  `gorm:"not null;uniqueIndex:idx_template_section_slug" json:"template_id"`
	Slug              string                                `gorm:"not null;uniqueIndex:idx_template_section_slug" json:"slug"`
	Name              string                                `gorm:"not null" json:"name"`
	SectionType       SectionType                           `gorm:"not null;default:'full-width'" json:"section_type"`
	ColumnLayout      string                                `gorm:"default:'12'" json:"column_layout"`
	IsRepeatable      bool                                  `gorm:"default:false" json:"is_repeatable"`
	MaxWidgets        *int                                  `json:"max_widgets,omitempty"`
	Position          int                                   `gorm:"default:0;index" json:"position"`
	WidgetConstraints datatypes.JSONType[WidgetConstraints] `json:"widget_constraints"`
	CreatedAt         time.Time                             `json:"created_at"`
	UpdatedAt         time.Time                             `json:"updated_at"`
}

type WidgetConstraints struct {
	DefaultWidgetSize *GridSize `json:"default_widget_size,omitempty"`
}

type GridSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

type Page struct {
	ID         uint          `gorm:"primary_key;autoIncrement" json:"id"`
	TemplateID uint          `gorm:"not null;index" json:"template_id"`
	Title      string        `gorm:"not null" json:"title"`
	Slug       string        `gorm:"unique;not null;index" json:"slug"`
	Status     PageStatus    `gorm:"not null;default:'draft'" json:"status"`
	Sections   []PageSection `gorm:"foreignKey:PageID" json:"sections,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type PageSection struct {
	ID                uint                `gorm:"primary_key;autoIncrement" json:"id"`
	PageID            uint                `gorm:"not null;index" json:"page_id"`
	TemplateSectionID uint                `gorm:"not null;index" json:"template_section_id"`
	TemplateSection   *TemplateSection    `gorm:"foreignKey:TemplateSectionID" json:"template_section,omitempty"`
	GridID            string              `gorm:"unique;not null" json:"grid_id"`
	GridX             int                 `json:"grid_x"`
	GridY             int                 `json:"grid_y"`
	GridW             int                 `json:"grid_w"`
	GridH             int                 `json:"grid_h"`
	AllowsWidgets     bool                `gorm:"not null" json:"allows_widgets"`
	OrderIndex        int                 `gorm:"default:0;index" json:"order_index"`
	IsActive          bool                `gorm:"not null" json:"is_active"`
	Widgets           []PageSectionWidget `gorm:"foreignKey:PageSectionID" json:"widgets,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// PageSectionWidget is one placement of a Widget inside a page section.
// ContentItemID optionally binds the placement to a single content item.
type PageSectionWidget struct {
	ID             uint              `gorm:"primary_key;autoIncrement" json:"id"`
	PageSectionID  uint              `gorm:"not null;index" json:"page_section_id"`
	WidgetID       uint              `gorm:"not null;index" json:"widget_id"`
	ContentItemID  *uint             `gorm:"index" json:"content_item_id,omitempty"`
	Position       int               `gorm:"default:0" json:"position"`
	ColumnPosition string            `json:"column_position"`
	Settings       datatypes.JSONMap `json:"settings"`
	GridX          int               `json:"grid_x"`
	GridY          int               `json:"grid_y"`
	GridW          int               `json:"grid_w"`
	GridH          int               `json:"grid_h"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
