// Package query stores and runs declarative content queries: a content type
// scope, filters, ordering and pagination.
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

// StructuralKeys are the item properties a filter or ordering can name
// directly.
var StructuralKeys = []string{"title", "slug", "status", "created_at", "updated_at", "published_at"}

func isStructural(key string) bool {
	for _, k := range StructuralKeys {
		if k == key {
			return true
		}
	}
	return false
}

type Engine struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewEngine(db *gorm.DB, log zerolog.Logger) *Engine {
	return &Engine{db: db, log: log.With().Str("module", "query").Logger()}
}

type QueryInput struct {
	Name           string `json:"name" validate:"max=120"`
	ContentTypeID  *uint  `json:"content_type_id"`
	Limit          int    `json:"limit" validate:"min=0,max=1000"`
	Offset         int    `json:"offset" validate:"min=0"`
	OrderBy        string `json:"order_by" validate:"omitempty,fieldkey"`
	OrderDirection string `json:"order_direction" validate:"omitempty,oneof=asc desc ASC DESC"`
}

type FilterInput struct {
	FieldID        *uint                 `json:"field_id"`
	FieldKey       string                `json:"field_key"`
	Operator       models.FilterOperator `json:"operator" validate:"required"`
	Value          string                `json:"value"`
	ConditionGroup string                `json:"condition_group" validate:"max=64"`
}

// CreateQuery stores a query with its filters.
func (e *Engine) CreateQuery(ctx context.Context, in QueryInput, filters []FilterInput) (*models.WidgetContentQuery, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	q := &models.WidgetContentQuery{
		Name:           in.Name,
		ContentTypeID:  in.ContentTypeID,
		Limit:          in.Limit,
		Offset:         in.Offset,
		OrderBy:        in.OrderBy,
		OrderDirection: strings.ToLower(in.OrderDirection),
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkScope(tx, q); err != nil {
			return err
		}
		if err := tx.Create(q).Error; err != nil {
			return err
		}
		for i, f := range filters {
			if _, err := addFilter(tx, q, f, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.GetQuery(ctx, q.ID)
}

// UpdateQuery rewrites scope, ordering and pagination. Filters are kept and
// must still fit the new content type.
func (e *Engine) UpdateQuery(ctx context.Context, id uint, in QueryInput) (*models.WidgetContentQuery, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.WidgetContentQuery
		if err := tx.Preload("Filters").First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content query", id)
			}
			return err
		}
		q.Name = in.Name
		q.ContentTypeID = in.ContentTypeID
		q.Limit = in.Limit
		q.Offset = in.Offset
		q.OrderBy = in.OrderBy
		q.OrderDirection = strings.ToLower(in.OrderDirection)
		if err := checkScope(tx, &q); err != nil {
			return err
		}
		for _, f := range q.Filters {
			if f.FieldID != nil {
				if err := checkField(tx, &q, *f.FieldID); err != nil {
					return err
				}
			}
		}
		return tx.Omit("Filters").Save(&q).Error
	})
	if err != nil {
		return nil, err
	}
	return e.GetQuery(ctx, id)
}

func (e *Engine) GetQuery(ctx context.Context, id uint) (*models.WidgetContentQuery, error) {
	var q models.WidgetContentQuery
	err := e.db.WithContext(ctx).
		Preload("Filters", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("content query", id)
	}
	return &q, err
}

func (e *Engine) ListQueries(ctx context.Context) ([]models.WidgetContentQuery, error) {
	var list []models.WidgetContentQuery
	err := e.db.WithContext(ctx).Order("name ASC, id ASC").Find(&list).Error
	return list, err
}

// DeleteQuery removes a query and its filters unless a widget uses it.
func (e *Engine) DeleteQuery(ctx context.Context, id uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.WidgetContentQuery
		if err := tx.First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content query", id)
			}
			return err
		}
		var used int64
		if err := tx.Model(&models.Widget{}).Where("content_query_id = ?", id).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return &common.InUseError{Resource: "content query " + q.Name, Blocker: "widgets", Count: used}
		}
		if err := tx.Where("query_id = ?", id).Delete(&models.WidgetContentQueryFilter{}).Error; err != nil {
			return err
		}
		return tx.Delete(&q).Error
	})
}

// AddFilter appends a filter to a query.
func (e *Engine) AddFilter(ctx context.Context, queryID uint, in FilterInput) (*models.WidgetContentQueryFilter, error) {
	var f *models.WidgetContentQueryFilter
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.WidgetContentQuery
		if err := tx.First(&q, queryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content query", queryID)
			}
			return err
		}
		pos, err := common.NextPosition(tx, &models.WidgetContentQueryFilter{}, "position", "query_id = ?", queryID)
		if err != nil {
			return err
		}
		f, err = addFilter(tx, &q, in, pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *Engine) RemoveFilter(ctx context.Context, filterID uint) error {
	res := e.db.WithContext(ctx).Delete(&models.WidgetContentQueryFilter{}, filterID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("query filter", filterID)
	}
	return nil
}

// ValidateFilter checks a filter before it is stored: it targets exactly
// one of a content field or a structural key, and uses a known operator.
func ValidateFilter(in FilterInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	switch {
	case in.FieldID != nil && in.FieldKey != "":
		return common.Invalid("field_key", "a filter targets either field_id or field_key, not both")
	case in.FieldID == nil && in.FieldKey == "":
		return common.Invalid("field_key", "a filter needs field_id or field_key")
	case in.FieldKey != "" && !isStructural(in.FieldKey):
		return common.Invalid("field_key", "%q is not one of %s", in.FieldKey, strings.Join(StructuralKeys, ", "))
	}
	if !in.Operator.Valid() {
		return common.Invalid("operator", "unknown operator %q", in.Operator)
	}
	if in.Operator.NeedsValue() && in.Value == "" && in.Operator != models.OpEquals && in.Operator != models.OpNotEquals {
		return common.Invalid("value", "operator %s needs a value", in.Operator)
	}
	return nil
}

func addFilter(tx *gorm.DB, q *models.WidgetContentQuery, in FilterInput, position int) (*models.WidgetContentQueryFilter, error) {
	if err := ValidateFilter(in); err != nil {
		return nil, err
	}
	if in.FieldID != nil {
		if err := checkField(tx, q, *in.FieldID); err != nil {
			return nil, err
		}
	}
	f := &models.WidgetContentQueryFilter{
		QueryID:        q.ID,
		FieldID:        in.FieldID,
		FieldKey:       in.FieldKey,
		Operator:       in.Operator,
		Value:          in.Value,
		ConditionGroup: in.ConditionGroup,
		Position:       position,
	}
	if !in.Operator.NeedsValue() {
		f.Value = ""
	}
	return f, tx.Create(f).Error
}

// checkField requires a filtered field to exist and, for a scoped query, to
// belong to its content type.
func checkField(tx *gorm.DB, q *models.WidgetContentQuery, fieldID uint) error {
	var field models.ContentTypeField
	if err := tx.First(&field, fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFound("field", fieldID)
		}
		return err
	}
	if q.ContentTypeID != nil && field.ContentTypeID != *q.ContentTypeID {
		return common.Invalid("field_id", "field %s belongs to another content type", field.Slug)
	}
	return nil
}

// checkScope validates the content type and the ordering key: a structural
// key, or a field slug of the scoped content type.
func checkScope(tx *gorm.DB, q *models.WidgetContentQuery) error {
	if q.ContentTypeID != nil {
		var n int64
		if err := tx.Model(&models.ContentType{}).Where("id = ?", *q.ContentTypeID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return common.NotFound("content type", *q.ContentTypeID)
		}
	}
	if q.OrderBy == "" || isStructural(q.OrderBy) {
		return nil
	}
	if q.ContentTypeID == nil {
		return common.Invalid("order_by", "ordering by field %s needs a content type", q.OrderBy)
	}
	var n int64
	if err := tx.Model(&models.ContentTypeField{}).
		Where("content_type_id = ? AND slug = ?", *q.ContentTypeID, q.OrderBy).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return common.Invalid("order_by", "%s is neither an item property nor a field", q.OrderBy)
	}
	return nil
}
