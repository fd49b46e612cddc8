package common

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	keyRe  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the "slug" and "fieldkey" tags
// registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report json names so struct failures match hand-written errors.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugRe.MatchString(fl.Field().String())
		})
		validate.RegisterValidation("fieldkey", func(fl validator.FieldLevel) bool {
			return keyRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct runs validator tags on v and converts the first failure into
// a ValidationError naming the offending field.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return Invalid(fe.Field(), "failed %q check", fe.Tag())
	}
	return Invalid("", "%v", err)
}

// ValidateVar validates a single value against a validator tag.
func ValidateVar(field string, v any, tag string) error {
	if err := Validator().Var(v, tag); err != nil {
		return Invalid(field, "failed %q check", tag)
	}
	return nil
}

func IsSlug(s string) bool     { return slugRe.MatchString(s) }
func IsFieldKey(s string) bool { return keyRe.MatchString(s) }

// Positioned is an element that carries an ordering slot.
type Positioned struct {
	ID       uint
	Position int
}

// DenseOrder sorts items by position (ties by id, i.e. insertion order) and
// returns the ids in their new 0..n-1 order.
func DenseOrder(items []Positioned) []uint {
	sorted := make([]Positioned, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID < sorted[j].ID
	})
	ids := make([]uint, len(sorted))
	for i, p := range sorted {
		ids[i] = p.ID
	}
	return ids
}
