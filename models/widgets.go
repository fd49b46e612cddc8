package models

import (
	"time"

	"gorm.io/datatypes"
)

// WidgetFieldDecl declares one configurable key of a widget schema.
type WidgetFieldDecl struct {
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	FieldType    FieldType `json:"field_type"`
	DefaultValue any       `json:"default_value,omitempty"`
	Required     bool      `json:"required,omitempty"`
}

type AssetList struct {
	CSS []string `json:"css" yaml:"css"`
	JS  []string `json:"js" yaml:"js"`
}

// Widget is a reusable render unit. A nil ThemeID marks a global widget.
// Its schema comes from WidgetType fields when WidgetTypeID is set, and from
// the inline Schema otherwise.
type Widget struct {
	ID                uint                                  `gorm:"primary_key;autoIncrement" json:"id"`
	ThemeID           *uint                                 `gorm:"index" json:"theme_id,omitempty"`
	Slug              string                                `gorm:"not null;index" json:"slug"`
	Name              string                                `gorm:"not null" json:"name"`
	Description       string                                `gorm:"type:text" json:"description"`
	WidgetTypeID      *uint                                 `gorm:"index" json:"widget_type_id,omitempty"`
	ViewPath          string                                `json:"view_path"`
	DisplaySettingsID *uint                                 `gorm:"index" json:"display_settings_id,omitempty"`
	ContentQueryID    *uint                                 `gorm:"index" json:"content_query_id,omitempty"`
	Schema            datatypes.JSONType[[]WidgetFieldDecl] `json:"schema"`
	Assets            datatypes.JSONType[AssetList]         `json:"assets"`
	CreatedAt         time.Time                             `json:"created_at"`
	UpdatedAt         time.Time                             `json:"updated_at"`
}

type WidgetType struct {
	ID        uint              `gorm:"primary_key;autoIncrement" json:"id"`
	Slug      string            `gorm:"unique;not null" json:"slug"`
	Name      string            `gorm:"not null" json:"name"`
	Fields    []WidgetTypeField `gorm:"foreignKey:WidgetTypeID" json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type WidgetTypeField struct {
	ID           uint      `gorm:"primary_key;autoIncrement" json:"id"`
	WidgetTypeID uint      `gorm:"not null;uniqueIndex:idx_widget_type_key" json:"widget_type_id"`
	Key          string    `gorm:"not null;uniqueIndex:idx_widget_type_key" json:"key"`
	Label        string    `json:"label"`
	FieldType    FieldType `gorm:"not null" json:"field_type"`
	DefaultValue string    `gorm:"type:text" json:"default_value"`
	IsRequired   bool      `gorm:"default:false" json:"is_required"`
	Position     int       `gorm:"default:0" json:"position"`
}

type WidgetFieldValue struct {
	ID                uint   `gorm:"primary_key;autoIncrement" json:"id"`
	WidgetID          uint   `gorm:"not null;uniqueIndex:idx_widget_field_value" json:"widget_id"`
	WidgetTypeFieldID uint   `gorm:"not null;uniqueIndex:idx_widget_field_value" json:"widget_type_field_id"`
	Value             string `gorm:"type:text" json:"value"`
}

type WidgetDisplaySetting struct {
	ID        uint              `gorm:"primary_key;autoIncrement" json:"id"`
	Name      string            `gorm:"not null" json:"name"`
	ViewMode  string            `gorm:"default:'default'" json:"view_mode"`
	Settings  datatypes.JSONMap `json:"settings"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type AssociationOptions struct {
	Limit            int            `json:"limit,omitempty"`
	SortField        string         `json:"sort_field,omitempty"`
	SortDirection    string         `json:"sort_direction,omitempty"`
	Filters          map[string]any `json:"filters,omitempty"`
	SearchableFields []string       `json:"searchable_fields,omitempty"`
}

// WidgetContentTypeAssociation maps content field slugs to widget settings
// keys for one (widget, content type) pair.
type WidgetContentTypeAssociation struct {
	ID            uint                                   `gorm:"primary_key;autoIncrement" json:"id"`
	WidgetID      uint                                   `gorm:"not null;index:idx_assoc_pair" json:"widget_id"`
	ContentTypeID uint                                   `gorm:"not null;index:idx_assoc_pair" json:"content_type_id"`
	FieldMappings datatypes.JSONType[map[string]string]  `json:"field_mappings"`
	Options       datatypes.JSONType[AssociationOptions] `json:"options"`
	IsActive      bool                                   `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time                              `json:"created_at"`
	UpdatedAt     time.Time                              `json:"updated_at"`
}

type WidgetContentQuery struct {
	ID             uint                       `gorm:"primary_key;autoIncrement" json:"id"`
	Name           string                     `json:"name"`
	ContentTypeID  *uint                      `gorm:"index" json:"content_type_id,omitempty"`
	Limit          int                        `gorm:"default:0" json:"limit"`
	Offset         int                        `gorm:"default:0" json:"offset"`
	OrderBy        string                     `json:"order_by"`
	OrderDirection string                     `json:"order_direction"`
	Filters        []WidgetContentQueryFilter `gorm:"foreignKey:QueryID" json:"filters,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// WidgetContentQueryFilter targets either a content field (FieldID) or a
// structural item property (FieldKey), never both.
type WidgetContentQueryFilter struct {
	ID             uint           `gorm:"primary_key;autoIncrement" json:"id"`
	QueryID        uint           `gorm:"not null;index" json:"query_id"`
	FieldID        *uint          `json:"field_id,omitempty"`
	FieldKey       string         `json:"field_key,omitempty"`
	Operator       FilterOperator `gorm:"not null" json:"operator"`
	Value          string         `gorm:"type:text" json:"value"`
	ConditionGroup string         `gorm:"default:''" json:"condition_group"`
	Position       int            `gorm:"default:0" json:"position"`
}
