package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tessera/content"
	"tessera/models"
)

var dateKeys = map[string]bool{"created_at": true, "updated_at": true, "published_at": true}

// Execute runs a query. Filters sharing a condition group are OR'd, groups
// are AND'd; a filter without a group forms a group of its own. Items are
// ordered by created_at descending unless the query says otherwise, then
// limit and offset apply.
func (e *Engine) Execute(ctx context.Context, q *models.WidgetContentQuery) ([]models.ContentItem, error) {
	db := e.db.WithContext(ctx)
	stmt, err := e.build(db, q)
	if err != nil {
		return nil, err
	}
	var items []models.ContentItem
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	e.log.Debug().Uint("query_id", q.ID).Int("items", len(items)).Msg("query executed")
	return items, nil
}

func (e *Engine) ExecuteByID(ctx context.Context, id uint) ([]models.ContentItem, error) {
	q, err := e.GetQuery(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, q)
}

// Count returns the number of items matching the query's filters, ignoring
// pagination.
func (e *Engine) Count(ctx context.Context, q *models.WidgetContentQuery) (int64, error) {
	unpaged := *q
	unpaged.Limit, unpaged.Offset = 0, 0
	stmt, err := e.build(e.db.WithContext(ctx), &unpaged)
	if err != nil {
		return 0, err
	}
	var n int64
	err = stmt.Count(&n).Error
	return n, err
}

func (e *Engine) build(db *gorm.DB, q *models.WidgetContentQuery) (*gorm.DB, error) {
	stmt := db.Model(&models.ContentItem{})
	if q.ContentTypeID != nil {
		stmt = stmt.Where("content_items.content_type_id = ?", *q.ContentTypeID)
	}

	fieldTypes, err := filterFieldTypes(db, q.Filters)
	if err != nil {
		return nil, err
	}
	var order []string
	groups := map[string][]string{}
	args := map[string][]any{}
	for i, f := range q.Filters {
		sql, vars, err := condition(f, fieldTypes)
		if err != nil {
			return nil, err
		}
		group := f.ConditionGroup
		if group == "" {
			group = fmt.Sprintf("\x00%d", i)
		}
		if _, seen := groups[group]; !seen {
			order = append(order, group)
		}
		groups[group] = append(groups[group], sql)
		args[group] = append(args[group], vars...)
	}
	for _, g := range order {
		stmt = stmt.Where("("+strings.Join(groups[g], " OR ")+")", args[g]...)
	}

	// Without a direction the default created_at ordering is newest first
	// and explicit keys ascend.
	desc := strings.EqualFold(q.OrderDirection, "desc") || (q.OrderDirection == "" && q.OrderBy == "")
	switch {
	case q.OrderBy == "":
		stmt = stmt.Order(clause.OrderByColumn{Column: clause.Column{Table: "content_items", Name: "created_at"}, Desc: desc})
	case isStructural(q.OrderBy):
		stmt = stmt.Order(clause.OrderByColumn{Column: clause.Column{Table: "content_items", Name: q.OrderBy}, Desc: desc})
	default:
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		stmt = stmt.Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL: "(SELECT v.value FROM content_field_values v JOIN content_type_fields f ON f.id = v.field_id" +
				" WHERE v.content_item_id = content_items.id AND f.slug = ? LIMIT 1) " + dir,
			Vars:               []any{q.OrderBy},
			WithoutParentheses: true,
		}})
	}
	stmt = stmt.Order(clause.OrderByColumn{Column: clause.Column{Table: "content_items", Name: "id"}, Desc: desc})

	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	if q.Offset > 0 {
		stmt = stmt.Offset(q.Offset)
	}
	return stmt, nil
}

func filterFieldTypes(db *gorm.DB, filters []models.WidgetContentQueryFilter) (map[uint]models.FieldType, error) {
	var ids []uint
	for _, f := range filters {
		if f.FieldID != nil {
			ids = append(ids, *f.FieldID)
		}
	}
	out := map[uint]models.FieldType{}
	if len(ids) == 0 {
		return out, nil
	}
	var fields []models.ContentTypeField
	if err := db.Select("id", "field_type").Where("id IN ?", ids).Find(&fields).Error; err != nil {
		return nil, err
	}
	for _, f := range fields {
		out[f.ID] = f.FieldType
	}
	return out, nil
}

// condition renders one filter as a SQL predicate over content_items.
func condition(f models.WidgetContentQueryFilter, fieldTypes map[uint]models.FieldType) (string, []any, error) {
	if f.FieldKey != "" {
		if !isStructural(f.FieldKey) {
			return "", nil, fmt.Errorf("filter %d: unknown item property %q", f.ID, f.FieldKey)
		}
		col := "content_items." + f.FieldKey
		return predicate(col, f.Operator, f.Value, dateKeys[f.FieldKey])
	}
	if f.FieldID == nil {
		return "", nil, fmt.Errorf("filter %d targets nothing", f.ID)
	}
	ft, ok := fieldTypes[*f.FieldID]
	if !ok {
		return "", nil, fmt.Errorf("filter %d: field %d no longer exists", f.ID, *f.FieldID)
	}
	value := f.Value
	if ft == models.FieldBoolean && f.Operator.NeedsValue() {
		value = "0"
		if content.Truthy(f.Value) {
			value = "1"
		}
	}

	const exists = "EXISTS (SELECT 1 FROM content_field_values v WHERE v.content_item_id = content_items.id AND v.field_id = ?"
	switch f.Operator {
	case models.OpIsNull:
		return "NOT " + exists + " AND v.value <> '')", []any{*f.FieldID}, nil
	case models.OpIsNotNull:
		return exists + " AND v.value <> '')", []any{*f.FieldID}, nil
	case models.OpNotEquals:
		return "NOT " + exists + " AND v.value = ?)", []any{*f.FieldID, value}, nil
	case models.OpNotIn:
		return "NOT " + exists + " AND v.value IN ?)", []any{*f.FieldID, splitValues(value)}, nil
	}
	sql, vars, err := predicate("v.value", f.Operator, value, ft == models.FieldDate)
	if err != nil {
		return "", nil, err
	}
	return exists + " AND " + sql + ")", append([]any{*f.FieldID}, vars...), nil
}

// predicate compares col with a filter value. Text matches are case
// insensitive; greater/less compare numerically when the value is a number
// and as dates on date columns.
func predicate(col string, op models.FilterOperator, value string, isDate bool) (string, []any, error) {
	switch op {
	case models.OpEquals:
		return col + " = ?", []any{value}, nil
	case models.OpNotEquals:
		return "(" + col + " IS NULL OR " + col + " <> ?)", []any{value}, nil
	case models.OpContains:
		return "LOWER(" + col + ") LIKE ? ESCAPE '\\'", []any{"%" + escapeLike(value) + "%"}, nil
	case models.OpStartsWith:
		return "LOWER(" + col + ") LIKE ? ESCAPE '\\'", []any{escapeLike(value) + "%"}, nil
	case models.OpEndsWith:
		return "LOWER(" + col + ") LIKE ? ESCAPE '\\'", []any{"%" + escapeLike(value)}, nil
	case models.OpGreater, models.OpLess:
		cmp := " > ?"
		if op == models.OpLess {
			cmp = " < ?"
		}
		if isDate {
			if t, ok := parseTime(value); ok {
				return col + cmp, []any{t}, nil
			}
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return "CAST(" + col + " AS REAL)" + cmp, []any{n}, nil
		}
		return col + cmp, []any{value}, nil
	case models.OpIn:
		return col + " IN ?", []any{splitValues(value)}, nil
	case models.OpNotIn:
		return "(" + col + " IS NULL OR " + col + " NOT IN ?)", []any{splitValues(value)}, nil
	case models.OpIsNull:
		return "(" + col + " IS NULL OR " + col + " = '')", nil, nil
	case models.OpIsNotNull:
		return "(" + col + " IS NOT NULL AND " + col + " <> '')", nil, nil
	}
	return "", nil, fmt.Errorf("unknown operator %q", op)
}

func escapeLike(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func splitValues(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
