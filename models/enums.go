package models

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldRichText    FieldType = "richText"
	FieldNumber      FieldType = "number"
	FieldDate        FieldType = "date"
	FieldBoolean     FieldType = "boolean"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldRadio       FieldType = "radio"
	FieldCheckbox    FieldType = "checkbox"
	FieldImage       FieldType = "image"
	FieldGallery     FieldType = "gallery"
	FieldFile        FieldType = "file"
	FieldURL         FieldType = "url"
	FieldEmail       FieldType = "email"
	FieldColor       FieldType = "color"
	FieldJSON        FieldType = "json"
)

var validFieldTypes = map[FieldType]bool{
	FieldText: true, FieldTextarea: true, FieldRichText: true, FieldNumber: true,
	FieldDate: true, FieldBoolean: true, FieldSelect: true, FieldMultiselect: true,
	FieldRadio: true, FieldCheckbox: true, FieldImage: true, FieldGallery: true,
	FieldFile: true, FieldURL: true, FieldEmail: true, FieldColor: true, FieldJSON: true,
}

func (t FieldType) Valid() bool { return validFieldTypes[t] }

// HasOptions reports whether the field type carries a FieldOption list.
func (t FieldType) HasOptions() bool {
	switch t {
	case FieldSelect, FieldMultiselect, FieldCheckbox, FieldRadio:
		return true
	}
	return false
}

// IsMedia reports whether values of this type live in the media store
// instead of the text value slot.
func (t FieldType) IsMedia() bool {
	return t == FieldImage || t == FieldGallery || t == FieldFile
}

type ItemStatus string

const (
	ItemDraft     ItemStatus = "draft"
	ItemPublished ItemStatus = "published"
	ItemArchived  ItemStatus = "archived"
)

func (s ItemStatus) Valid() bool {
	return s == ItemDraft || s == ItemPublished || s == ItemArchived
}

type PageStatus string

const (
	PageDraft     PageStatus = "draft"
	PagePublished PageStatus = "published"
)

func (s PageStatus) Valid() bool { return s == PageDraft || s == PagePublished }

type SectionType string

const (
	SectionFullWidth    SectionType = "full-width"
	SectionMultiColumn  SectionType = "multi-column"
	SectionSidebarLeft  SectionType = "sidebar-left"
	SectionSidebarRight SectionType = "sidebar-right"
)

func (s SectionType) Valid() bool {
	switch s {
	case SectionFullWidth, SectionMultiColumn, SectionSidebarLeft, SectionSidebarRight:
		return true
	}
	return false
}

type FilterOperator string

const (
	OpEquals     FilterOperator = "equals"
	OpNotEquals  FilterOperator = "not_equals"
	OpContains   FilterOperator = "contains"
	OpStartsWith FilterOperator = "starts_with"
	OpEndsWith   FilterOperator = "ends_with"
	OpGreater    FilterOperator = "greater_than"
	OpLess       FilterOperator = "less_than"
	OpIn         FilterOperator = "in"
	OpNotIn      FilterOperator = "not_in"
	OpIsNull     FilterOperator = "is_null"
	OpIsNotNull  FilterOperator = "is_not_null"
)

func (o FilterOperator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpGreater,
		OpLess, OpIn, OpNotIn, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// NeedsValue is false for the operators that ignore the filter value.
func (o FilterOperator) NeedsValue() bool { return o != OpIsNull && o != OpIsNotNull }
