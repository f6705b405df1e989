package record

import (
	"reflect"
)

type updateKind int

const (
	updSet updateKind = iota
	updSetIfNotExists
	updAppend
	updPrepend
	updIncrement
	updDecrement
	updRemove
	updAdd
	updDelete
)

// UpdateOp is one element of an update list. Operations on the same path are
// kept in caller order; the service applies the last one.
type UpdateOp struct {
	kind  updateKind
	path  string
	value any
}

// Set assigns v to path.
func Set(path string, v any) UpdateOp { return UpdateOp{kind: updSet, path: path, value: v} }

// SetIfNotExists assigns v only when path has no value yet.
func SetIfNotExists(path string, v any) UpdateOp {
	return UpdateOp{kind: updSetIfNotExists, path: path, value: v}
}

// Append adds elements to the end of a list.
func Append(path string, v any) UpdateOp { return UpdateOp{kind: updAppend, path: path, value: v} }

// Prepend adds elements to the front of a list.
func Prepend(path string, v any) UpdateOp { return UpdateOp{kind: updPrepend, path: path, value: v} }

// Increment is SET path = path + by.
func Increment(path string, by any) UpdateOp { return UpdateOp{kind: updIncrement, path: path, value: by} }

// Decrement is SET path = path - by.
func Decrement(path string, by any) UpdateOp { return UpdateOp{kind: updDecrement, path: path, value: by} }

// Remove deletes the attribute or list element at path.
func Remove(path string) UpdateOp { return UpdateOp{kind: updRemove, path: path} }

// Add adds a number to a numeric attribute or members to a set.
func Add(path string, v any) UpdateOp { return UpdateOp{kind: updAdd, path: path, value: v} }

// Delete removes members from a set.
func Delete(path string, v any) UpdateOp { return UpdateOp{kind: updDelete, path: path, value: v} }

// Path returns the logical path the operation targets.
func (u UpdateOp) Path() string { return u.path }

type updateClauses struct {
	set    []string
	remove []string
	add    []string
	del    []string
}

func (u UpdateOp) compile(c *compiler, out *updateClauses) error {
	target, err := c.path(u.path)
	if err != nil {
		return err
	}
	declared := c.declared(u.path)
	switch u.kind {
	case updSet, updSetIfNotExists:
		v, err := c.literal(u.path, u.value, declared)
		if err != nil {
			return err
		}
		if u.kind == updSet {
			out.set = append(out.set, target+" = "+v)
		} else {
			out.set = append(out.set, target+" = if_not_exists("+target+", "+v+")")
		}

	case updAppend, updPrepend:
		v, err := c.literal(u.path, asList(u.value), TypeList)
		if err != nil {
			return err
		}
		if u.kind == updAppend {
			out.set = append(out.set, target+" = list_append("+target+", "+v+")")
		} else {
			out.set = append(out.set, target+" = list_append("+v+", "+target+")")
		}

	case updIncrement, updDecrement:
		if !declared.isNumeric() {
			if declared != TypeAny {
				return typeMismatch(u.path, "cannot increment a %s attribute", declared)
			}
			declared = TypeNumber
		}
		v, err := c.literal(u.path, u.value, declared)
		if err != nil {
			return err
		}
		sign := " + "
		if u.kind == updDecrement {
			sign = " - "
		}
		out.set = append(out.set, target+" = "+target+sign+v)

	case updRemove:
		out.remove = append(out.remove, target)

	case updAdd:
		t := declared
		switch {
		case t == TypeAny:
			t = inferAddType(u.value)
		case !t.isNumeric() && !t.isSet():
			return typeMismatch(u.path, "ADD requires a number or set attribute, not %s", declared)
		}
		v, err := c.literal(u.path, u.value, t)
		if err != nil {
			return err
		}
		out.add = append(out.add, target+" "+v)

	case updDelete:
		t := declared
		switch {
		case t == TypeAny:
			t = inferAddType(u.value)
			if !t.isSet() {
				return typeMismatch(u.path, "DELETE requires a set value, got %T", u.value)
			}
		case !t.isSet():
			return typeMismatch(u.path, "DELETE requires a set attribute, not %s", declared)
		}
		v, err := c.literal(u.path, u.value, t)
		if err != nil {
			return err
		}
		out.del = append(out.del, target+" "+v)
	}
	return nil
}

// inferAddType picks a set type for slices and a number otherwise.
func inferAddType(v any) AttrType {
	v = indirect(v)
	if _, ok := v.([][]byte); ok {
		return TypeBinarySet
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type() == bytesType {
		return TypeNumber
	}
	switch rv.Type().Elem().Kind() {
	case reflect.String:
		return TypeStringSet
	default:
		return TypeNumberSet
	}
}

func asList(v any) any {
	v = indirect(v)
	if v == nil {
		return []any{}
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type() != bytesType {
		return v
	}
	return []any{v}
}
