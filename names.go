/*
Package record – name resolution.

A NameTable translates logical attribute names to wire names (aliases) and
back. Paths look like `profile.tags[0]`; only the leading segment is ever
translated because aliases are declared per top-level attribute.
*/
package record

import (
	"fmt"
	"strconv"
	"strings"
)

// NameTable is immutable after construction and safe for concurrent use.
type NameTable struct {
	toWire     map[string]string
	toLogical  map[string]string
	types      map[string]AttrType // keyed by logical name
	permissive bool
}

func newNameTable(attrs []*Attribute) *NameTable {
	n := &NameTable{
		toWire:    make(map[string]string, len(attrs)),
		toLogical: make(map[string]string, len(attrs)),
		types:     make(map[string]AttrType, len(attrs)),
	}
	for _, a := range attrs {
		n.toWire[a.Name] = a.Wire
		n.toLogical[a.Wire] = a.Name
		n.types[a.Name] = a.Type
	}
	return n
}

// Permissive returns a view of the table that passes unknown names through
// unchanged instead of failing. Used for filters on undeclared attributes.
func (n *NameTable) Permissive() *NameTable {
	cp := *n
	cp.permissive = true
	return &cp
}

// Strict returns a view of the table that rejects unknown names.
func (n *NameTable) Strict() *NameTable {
	cp := *n
	cp.permissive = false
	return &cp
}

// IsPermissive reports whether unknown names pass through.
func (n *NameTable) IsPermissive() bool { return n.permissive }

// ToWire translates a logical path into its wire path.
func (n *NameTable) ToWire(path string) (string, error) {
	elems, err := parsePath(path)
	if err != nil {
		return "", err
	}
	wire, err := n.wireName(elems[0].name)
	if err != nil {
		return "", atPath(err, path)
	}
	elems[0].name = wire
	return formatPath(elems), nil
}

// ToLogical translates a wire path into its logical path.
func (n *NameTable) ToLogical(path string) (string, error) {
	elems, err := parsePath(path)
	if err != nil {
		return "", err
	}
	logical, ok := n.toLogical[elems[0].name]
	if !ok {
		if !n.permissive {
			return "", NewError(fmt.Sprintf("unknown wire attribute %q", elems[0].name),
				WithCode(CodeUnknownAttribute), WithPath(path))
		}
		logical = elems[0].name
	}
	elems[0].name = logical
	return formatPath(elems), nil
}

func (n *NameTable) wireName(logical string) (string, error) {
	if w, ok := n.toWire[logical]; ok {
		return w, nil
	}
	if n.permissive {
		return logical, nil
	}
	return "", NewError(fmt.Sprintf("unknown attribute %q", logical),
		WithCode(CodeUnknownAttribute), WithPath(logical))
}

// typeOf returns the declared type of a top-level logical name, or TypeAny.
func (n *NameTable) typeOf(logical string) AttrType {
	if t, ok := n.types[logical]; ok {
		return t
	}
	return TypeAny
}

// pathElem is one step of a document path: a map key or a list index.
type pathElem struct {
	name    string
	index   int
	isIndex bool
}

func parsePath(path string) ([]pathElem, error) {
	if path == "" {
		return nil, NewError("empty attribute path", WithCode(CodeArgument))
	}
	var elems []pathElem
	i := 0
	expectName := true
	for i < len(path) {
		switch {
		case expectName:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' && path[j] != ']' {
				j++
			}
			if j == i {
				return nil, badPath(path)
			}
			elems = append(elems, pathElem{name: path[i:j]})
			i = j
			expectName = false
		case path[i] == '.':
			i++
			expectName = true
			if i == len(path) {
				return nil, badPath(path)
			}
		case path[i] == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, badPath(path)
			}
			idx, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil || idx < 0 {
				return nil, badPath(path)
			}
			elems = append(elems, pathElem{index: idx, isIndex: true})
			i += end + 1
		default:
			return nil, badPath(path)
		}
	}
	return elems, nil
}

func formatPath(elems []pathElem) string {
	var b strings.Builder
	for i, e := range elems {
		if e.isIndex {
			fmt.Fprintf(&b, "[%d]", e.index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.name)
	}
	return b.String()
}

func badPath(path string) *Error {
	return NewError(fmt.Sprintf("malformed attribute path %q", path), WithCode(CodeArgument), WithPath(path))
}
