// Package sanitize чистит пользовательский текст от HTML.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text удаляет разметку и обрезает пробелы. Сущности раскодируются обратно,
// чтобы "a & b" не превращалось в "a &amp; b".
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// OptionalText: как Text, но пустой результат превращается в nil.
func OptionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := Text(*s)
	if v == "" {
		return nil
	}
	return &v
}
