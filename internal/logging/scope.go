package logging

import (
	"log/slog"
	"slices"
)

// scopedAttr is an attribute together with the groups open when it was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// handlerScope tracks the attributes and groups a handler accumulated
// through WithAttrs and WithGroup.
type handlerScope struct {
	attrs  []scopedAttr
	groups []string
}

func (s handlerScope) withAttrs(attrs []slog.Attr) handlerScope {
	next := handlerScope{attrs: slices.Clip(s.attrs), groups: s.groups}
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: s.groups, attr: a})
	}
	return next
}

func (s handlerScope) withGroup(name string) handlerScope {
	return handlerScope{attrs: s.attrs, groups: append(slices.Clip(s.groups), name)}
}

// each calls fn for the scoped attributes, then for the record's own.
func (s handlerScope) each(r slog.Record, fn func(groups []string, a slog.Attr)) {
	for _, sa := range s.attrs {
		fn(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		fn(s.groups, a)
		return true
	})
}
