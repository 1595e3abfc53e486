// ABOUTME: Reply template rendering with {placeholder} interpolation
// ABOUTME: Unknown placeholders are left verbatim and a literal \n becomes a line break

package responds

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9]+)\}`)

// Vars holds the values available to a template.
type Vars map[string]string

// MessageVars returns the variables every reply can use.
func MessageVars(sender, room string) Vars {
	return Vars{
		"sender": sender,
		"room":   room,
	}
}

// Render fills template from vars.
func Render(template string, vars Vars) string {
	template = strings.ReplaceAll(template, `\n`, "\n")

	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return token
	})
}
