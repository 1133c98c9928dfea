package platform

import (
	"fmt"
	"strings"
)

// Catalog is a Localizer backed by fmt formats keyed by message key. Keys
// without a format render as the key followed by the arguments, so a missing
// translation is visible but never fatal.
type Catalog map[string]string

func (c Catalog) Localize(key string, args ...any) string {
	if format, ok := c[key]; ok {
		return fmt.Sprintf(format, args...)
	}
	if len(args) == 0 {
		return key
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, key)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}
