package table

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Field describes one logical column and the header spellings accepted for it.
type Field struct {
	Name     string
	Aliases  []string
	Required bool
}

// Columns maps logical field names to resolved column indexes. Absent
// optional fields map to -1.
type Columns map[string]int

// Has reports whether a field resolved to a column.
func (c Columns) Has(field string) bool {
	i, ok := c[field]
	return ok && i >= 0
}

// Bind resolves fields against t once. overrides, keyed by field name,
// replace the default aliases. Missing required fields are reported
// together, naming the owner and every alias tried.
func Bind(owner string, t *Table, fields []Field, overrides map[string][]string) (Columns, error) {
	out := make(Columns, len(fields))
	var missing []string
	for _, f := range fields {
		aliases := f.Aliases
		if o, ok := overrides[f.Name]; ok && len(o) > 0 {
			aliases = o
		}
		i, ok := t.Resolve(aliases...)
		if !ok {
			i = -1
			if f.Required {
				missing = append(missing, f.Name+" ("+strings.Join(aliases, "|")+")")
			}
		}
		out[f.Name] = i
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, eris.Wrapf(ErrMissingColumns, "%s: need %s; have %s",
			owner, strings.Join(missing, ", "), strings.Join(t.Columns, ","))
	}
	return out, nil
}
