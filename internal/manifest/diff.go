package manifest

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Diff returns the JSON paths of every value that differs between a and b,
// e.g. "builders[0].region". Paths are listed in field order.
func Diff(a, b *Manifest) []string {
	var r diffReporter
	cmp.Equal(a, b, cmp.Reporter(&r))
	return r.diffs
}

// diffReporter collects the paths of unequal leaves.
type diffReporter struct {
	path  cmp.Path
	diffs []string
}

func (r *diffReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *diffReporter) Report(rs cmp.Result) {
	if !rs.Equal() {
		r.diffs = append(r.diffs, jsonPath(r.path))
	}
}

func (r *diffReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

// jsonPath renders a cmp.Path with JSON field names.
func jsonPath(p cmp.Path) string {
	var b strings.Builder
	for i, step := range p {
		switch s := step.(type) {
		case cmp.StructField:
			name := s.Name()
			if i > 0 {
				name = jsonName(p[i-1].Type(), s.Index(), name)
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(name)
		case cmp.SliceIndex:
			ix, iy := s.SplitKeys()
			if ix < 0 {
				ix = iy
			}
			fmt.Fprintf(&b, "[%d]", ix)
		case cmp.MapIndex:
			fmt.Fprintf(&b, ".%v", s.Key())
		}
	}
	return b.String()
}

func jsonName(parent reflect.Type, index int, fallback string) string {
	for parent.Kind() == reflect.Pointer {
		parent = parent.Elem()
	}
	if parent.Kind() != reflect.Struct {
		return fallback
	}
	tag := parent.Field(index).Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fallback
	}
	return name
}
