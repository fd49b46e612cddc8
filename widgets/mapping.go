package widgets

import (
	"sort"
)

type synonym struct {
	Target     string
	Candidates []string
}

// synonyms maps a widget field key to the content field slugs that feed it,
// best candidate first. Persisted mappings depend on this table; append
// rows, do not reorder them.
var synonyms = []synonym{
	{"title", []string{"title", "heading", "name"}},
	{"description", []string{"description", "summary", "excerpt"}},
	{"content", []string{"content", "body", "text"}},
	{"image", []string{"image", "featured_image", "thumbnail"}},
	{"url", []string{"url", "link", "href"}},
	{"date", []string{"date", "published_at", "created_at"}},
}

// Synonyms returns the candidate content slugs for a widget key, or nil
// when the key has no row in the table.
func Synonyms(widgetKey string) []string {
	for _, s := range synonyms {
		if s.Target == widgetKey {
			return append([]string(nil), s.Candidates...)
		}
	}
	return nil
}

// GenerateMappings pairs content field slugs with widget keys. Each widget
// key, in declaration order, takes its first synonym candidate present in
// contentSlugs, or failing that the content field with the same slug. A
// content field feeds at most one widget key. The result is keyed by
// content slug.
func GenerateMappings(widgetKeys, contentSlugs []string) map[string]string {
	present := make(map[string]bool, len(contentSlugs))
	for _, s := range contentSlugs {
		present[s] = true
	}
	out := map[string]string{}
	for _, key := range widgetKeys {
		matched := false
		for _, cand := range Synonyms(key) {
			if present[cand] {
				if _, used := out[cand]; !used {
					out[cand] = key
					matched = true
					break
				}
			}
		}
		if !matched && present[key] {
			if _, used := out[key]; !used {
				out[key] = key
			}
		}
	}
	return out
}

// MergeMappings overlays explicit mappings on generated ones. A widget key
// targeted explicitly is no longer fed by a generated mapping.
func MergeMappings(generated, explicit map[string]string) map[string]string {
	taken := make(map[string]bool, len(explicit))
	for _, key := range explicit {
		taken[key] = true
	}
	out := make(map[string]string, len(generated)+len(explicit))
	for slug, key := range generated {
		if !taken[key] {
			out[slug] = key
		}
	}
	for slug, key := range explicit {
		out[slug] = key
	}
	return out
}

// ApplyMappings copies values into settings through mappings. Only keys
// already present in settings are written. It returns the widget keys that
// received a value.
func ApplyMappings(settings, values map[string]any, mappings map[string]string) map[string]bool {
	slugs := make([]string, 0, len(mappings))
	for slug := range mappings {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	bound := map[string]bool{}
	for _, slug := range slugs {
		v, ok := values[slug]
		if !ok {
			continue
		}
		key := mappings[slug]
		if _, exists := settings[key]; !exists {
			continue
		}
		settings[key] = v
		bound[key] = true
	}
	return bound
}
