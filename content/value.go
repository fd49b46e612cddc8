package content

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tessera/media"
	"tessera/models"
)

// Kind discriminates the variants of Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindList
	KindJSON
	KindMedia
)

// Value is a decoded field value. Only the member matching Kind is set.
type Value struct {
	Kind     Kind
	Text     string
	Number   float64
	Bool     bool
	Time     time.Time
	List     []string
	JSON     any
	Media    []media.Ref
	Multiple bool
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Decode turns the stored text of a field value into its typed variant.
// Media fields decode to an empty media value; attachments are filled in by
// the store.
func Decode(ft models.FieldType, raw string) Value {
	switch ft {
	case models.FieldBoolean:
		return Value{Kind: KindBool, Bool: raw == "1"}
	case models.FieldNumber:
		if raw == "" {
			return Value{Kind: KindNull}
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{Kind: KindText, Text: raw}
		}
		return Value{Kind: KindNumber, Number: n}
	case models.FieldDate:
		if raw == "" {
			return Value{Kind: KindNull}
		}
		if t, ok := parseDate(raw); ok {
			return Value{Kind: KindDate, Time: t, Text: raw}
		}
		return Value{Kind: KindText, Text: raw}
	case models.FieldMultiselect, models.FieldCheckbox:
		var list []string
		if raw != "" && json.Unmarshal([]byte(raw), &list) != nil {
			list = splitList(raw)
		}
		return Value{Kind: KindList, List: list}
	case models.FieldJSON:
		if raw == "" {
			return Value{Kind: KindNull}
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return Value{Kind: KindText, Text: raw}
		}
		return Value{Kind: KindJSON, JSON: v}
	case models.FieldImage, models.FieldFile:
		return Value{Kind: KindMedia}
	case models.FieldGallery:
		return Value{Kind: KindMedia, Multiple: true}
	}
	return Value{Kind: KindText, Text: raw}
}

// Interface returns the value in the shape used by widget settings.
// Media values become a URL (or a list of URLs for galleries).
func (v Value) Interface() any {
	switch v.Kind {
	case KindText, KindDate:
		return v.Text
	case KindNumber:
		return v.Number
	case KindBool:
		return v.Bool
	case KindList:
		if v.List == nil {
			return []string{}
		}
		return v.List
	case KindJSON:
		return v.JSON
	case KindMedia:
		if v.Multiple {
			urls := make([]string, len(v.Media))
			for i, m := range v.Media {
				urls[i] = m.URL
			}
			return urls
		}
		if len(v.Media) > 0 {
			return v.Media[0].URL
		}
		return ""
	}
	return nil
}

// IsEmpty reports whether the value carries nothing worth rendering.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == ""
	case KindList:
		return len(v.List) == 0
	case KindMedia:
		return len(v.Media) == 0
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
