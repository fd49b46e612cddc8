package content

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tessera/common"
	"tessera/models"
)

// Encode converts a raw input value into the stored text for a field.
// Booleans are normalized to "1"/"0" whatever the payload shape, and media
// fields store no text.
func Encode(field *models.ContentTypeField, raw any) (string, error) {
	switch field.FieldType {
	case models.FieldBoolean:
		if Truthy(raw) {
			return "1", nil
		}
		return "0", nil
	case models.FieldImage, models.FieldGallery, models.FieldFile:
		return "", nil
	case models.FieldJSON:
		return encodeJSON(field, raw)
	}

	if raw == nil {
		return "", nil
	}

	switch field.FieldType {
	case models.FieldNumber:
		return encodeNumber(field, raw)
	case models.FieldDate:
		return encodeDate(field, raw)
	case models.FieldSelect, models.FieldRadio:
		s := strings.TrimSpace(toString(raw))
		if s != "" && !optionAllowed(field, s) {
			return "", common.Invalid(field.Slug, "%q is not one of the field options", s)
		}
		return s, nil
	case models.FieldMultiselect, models.FieldCheckbox:
		return encodeList(field, raw)
	case models.FieldEmail:
		s := strings.TrimSpace(toString(raw))
		if s != "" {
			if err := common.ValidateVar(field.Slug, s, "email"); err != nil {
				return "", err
			}
		}
		return s, nil
	case models.FieldURL:
		s := strings.TrimSpace(toString(raw))
		if s != "" {
			if err := common.ValidateVar(field.Slug, s, "url"); err != nil {
				return "", err
			}
		}
		return s, nil
	case models.FieldColor:
		s := strings.TrimSpace(toString(raw))
		if s != "" {
			if err := common.ValidateVar(field.Slug, s, "hexcolor|rgb|rgba"); err != nil {
				return "", err
			}
		}
		return s, nil
	}
	return toString(raw), nil
}

// Truthy normalizes checkbox-like payloads. Absence (nil) is false.
func Truthy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "off", "no", "null":
			return false
		}
		return true
	case []string:
		return len(v) > 0 && Truthy(v[len(v)-1])
	case []any:
		return len(v) > 0 && Truthy(v[len(v)-1])
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}

func encodeJSON(field *models.ContentTypeField, raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", common.Invalid(field.Slug, "cannot encode json: %v", err)
	}
	return string(b), nil
}

func encodeNumber(field *models.ContentTypeField, raw any) (string, error) {
	switch v := raw.(type) {
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		raw = v.String()
	}
	s := strings.TrimSpace(toString(raw))
	if s == "" {
		return "", nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", common.Invalid(field.Slug, "%q is not a number", s)
	}
	return s, nil
}

func encodeDate(field *models.ContentTypeField, raw any) (string, error) {
	if t, ok := raw.(time.Time); ok {
		return t.Format(time.RFC3339), nil
	}
	s := strings.TrimSpace(toString(raw))
	if s == "" {
		return "", nil
	}
	if _, ok := parseDate(s); !ok {
		return "", common.Invalid(field.Slug, "%q is not a date", s)
	}
	return s, nil
}

func encodeList(field *models.ContentTypeField, raw any) (string, error) {
	var list []string
	switch v := raw.(type) {
	case []string:
		list = v
	case []any:
		for _, e := range v {
			list = append(list, toString(e))
		}
	case string:
		list = splitList(v)
	default:
		list = []string{toString(v)}
	}
	for _, s := range list {
		if !optionAllowed(field, s) {
			return "", common.Invalid(field.Slug, "%q is not one of the field options", s)
		}
	}
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

// optionAllowed accepts anything when the field defines no options.
func optionAllowed(field *models.ContentTypeField, s string) bool {
	if len(field.Options) == 0 {
		return true
	}
	for _, o := range field.Options {
		if o.Value == s {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, ",")
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
