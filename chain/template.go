package chain

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	placeholderStart = "{"
	placeholderEnd   = "}"
)

// Render substitutes {key} placeholders with values. Every placeholder must
// name a key present in values; missing declared inputs should be passed as "".
// An unterminated placeholder fails with ErrTemplateMalformed.
func Render(template string, values map[string]string) (string, error) {
	if _, err := Placeholders(template); err != nil {
		return "", err
	}
	rendered, err := fasttemplate.ExecuteFuncStringWithErr(
		template,
		placeholderStart,
		placeholderEnd,
		func(w io.Writer, key string) (int, error) {
			value, ok := values[key]
			if !ok {
				return 0, fmt.Errorf("%w: key=%q", ErrTemplateUnknownKey, key)
			}
			return io.WriteString(w, value)
		},
	)
	if err != nil {
		return "", err
	}
	return rendered, nil
}

// Placeholders lists the keys referenced by a template in order of appearance.
func Placeholders(template string) ([]string, error) {
	var keys []string
	rest := template
	for {
		start := strings.Index(rest, placeholderStart)
		if start < 0 {
			return keys, nil
		}
		rest = rest[start+len(placeholderStart):]
		end := strings.Index(rest, placeholderEnd)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated placeholder", ErrTemplateMalformed)
		}
		keys = append(keys, rest[:end])
		rest = rest[end+len(placeholderEnd):]
	}
}
