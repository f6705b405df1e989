package record

import (
	"fmt"
	"strings"
)

// Condition is an immutable node of a condition tree. Build conditions with
// Attr, And, Or and Not; compile them with CompileCondition.
type Condition interface {
	compileCondition(c *compiler) (string, error)
}

// Comparison operators.
const (
	OpEq = "="
	OpNe = "<>"
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
)

// Path names an attribute, optionally nested: `profile.tags[0]`.
type Path struct {
	path string
}

// Attr starts a condition on a logical attribute path.
func Attr(path string) Path { return Path{path: path} }

func (p Path) String() string { return p.path }

func (p Path) Eq(v any) Condition { return &comparison{path: p.path, op: OpEq, value: v} }
func (p Path) Ne(v any) Condition { return &comparison{path: p.path, op: OpNe, value: v} }
func (p Path) Lt(v any) Condition { return &comparison{path: p.path, op: OpLt, value: v} }
func (p Path) Le(v any) Condition { return &comparison{path: p.path, op: OpLe, value: v} }
func (p Path) Gt(v any) Condition { return &comparison{path: p.path, op: OpGt, value: v} }
func (p Path) Ge(v any) Condition { return &comparison{path: p.path, op: OpGe, value: v} }

// Exists is attribute_exists(path).
func (p Path) Exists() Condition { return &existence{path: p.path, exists: true} }

// NotExists is attribute_not_exists(path).
func (p Path) NotExists() Condition { return &existence{path: p.path} }

func (p Path) BeginsWith(prefix any) Condition { return &beginsWith{path: p.path, prefix: prefix} }

// Contains matches a substring of a string or a member of a set or list.
func (p Path) Contains(v any) Condition { return &contains{path: p.path, value: v} }

func (p Path) Between(lo, hi any) Condition { return &between{path: p.path, lo: lo, hi: hi} }

// In matches any of values.
func (p Path) In(values ...any) Condition { return &membership{path: p.path, values: values} }

// IsType matches the wire type tag: S, N, B, BOOL, NULL, L, M, SS, NS or BS.
func (p Path) IsType(tag string) Condition { return &typeCheck{path: p.path, tag: tag} }

// Size compares the size of the attribute rather than its value.
func (p Path) Size() SizeOf { return SizeOf{path: p.path} }

// SizeOf builds size(path) comparisons.
type SizeOf struct {
	path string
}

func (s SizeOf) Eq(v any) Condition { return &sizeComparison{path: s.path, op: OpEq, value: v} }
func (s SizeOf) Ne(v any) Condition { return &sizeComparison{path: s.path, op: OpNe, value: v} }
func (s SizeOf) Lt(v any) Condition { return &sizeComparison{path: s.path, op: OpLt, value: v} }
func (s SizeOf) Le(v any) Condition { return &sizeComparison{path: s.path, op: OpLe, value: v} }
func (s SizeOf) Gt(v any) Condition { return &sizeComparison{path: s.path, op: OpGt, value: v} }
func (s SizeOf) Ge(v any) Condition { return &sizeComparison{path: s.path, op: OpGe, value: v} }

// And is the conjunction of conds.
func And(conds ...Condition) Condition { return &junction{op: "AND", children: conds} }

// Or is the disjunction of conds.
func Or(conds ...Condition) Condition { return &junction{op: "OR", children: conds} }

// Not negates c.
func Not(c Condition) Condition { return &negation{child: c} }

type comparison struct {
	path  string
	op    string
	value any
}

func (n *comparison) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	v, err := c.literal(n.path, n.value, c.declared(n.path))
	if err != nil {
		return "", err
	}
	return target + " " + n.op + " " + v, nil
}

type existence struct {
	path   string
	exists bool
}

func (n *existence) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	if n.exists {
		return "attribute_exists(" + target + ")", nil
	}
	return "attribute_not_exists(" + target + ")", nil
}

type beginsWith struct {
	path   string
	prefix any
}

func (n *beginsWith) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	t := c.declared(n.path)
	if t != TypeBinary {
		t = TypeString
	}
	v, err := c.literal(n.path, n.prefix, t)
	if err != nil {
		return "", err
	}
	return "begins_with(" + target + ", " + v + ")", nil
}

type contains struct {
	path  string
	value any
}

func (n *contains) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	t := c.declared(n.path)
	switch {
	case t.isSet():
		t = t.element()
	case t != TypeString && t != TypeBinary:
		t = TypeAny
	}
	v, err := c.literal(n.path, n.value, t)
	if err != nil {
		return "", err
	}
	return "contains(" + target + ", " + v + ")", nil
}

type between struct {
	path   string
	lo, hi any
}

func (n *between) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	t := c.declared(n.path)
	lo, err := c.literal(n.path, n.lo, t)
	if err != nil {
		return "", err
	}
	hi, err := c.literal(n.path, n.hi, t)
	if err != nil {
		return "", err
	}
	return target + " BETWEEN " + lo + " AND " + hi, nil
}

type membership struct {
	path   string
	values []any
}

func (n *membership) compileCondition(c *compiler) (string, error) {
	if len(n.values) == 0 {
		return "", NewError("IN requires at least one value", WithCode(CodeEmptyExpression), WithPath(n.path))
	}
	if len(n.values) > 100 {
		return "", NewError("IN accepts at most 100 values", WithCode(CodeTooManyClauses), WithPath(n.path))
	}
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	t := c.declared(n.path)
	vals := make([]string, len(n.values))
	for i, v := range n.values {
		if vals[i], err = c.literal(n.path, v, t); err != nil {
			return "", err
		}
	}
	return target + " IN (" + strings.Join(vals, ", ") + ")", nil
}

var wireTags = map[string]bool{
	"S": true, "N": true, "B": true, "BOOL": true, "NULL": true,
	"L": true, "M": true, "SS": true, "NS": true, "BS": true,
}

type typeCheck struct {
	path string
	tag  string
}

func (n *typeCheck) compileCondition(c *compiler) (string, error) {
	if !wireTags[n.tag] {
		return "", NewError(fmt.Sprintf("unknown type tag %q", n.tag), WithCode(CodeArgument), WithPath(n.path))
	}
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	v, err := c.literal(n.path, n.tag, TypeString)
	if err != nil {
		return "", err
	}
	return "attribute_type(" + target + ", " + v + ")", nil
}

type sizeComparison struct {
	path  string
	op    string
	value any
}

func (n *sizeComparison) compileCondition(c *compiler) (string, error) {
	target, err := c.path(n.path)
	if err != nil {
		return "", err
	}
	v, err := c.literal(n.path, n.value, TypeInt)
	if err != nil {
		return "", err
	}
	return "size(" + target + ") " + n.op + " " + v, nil
}

type junction struct {
	op       string
	children []Condition
}

func (n *junction) compileCondition(c *compiler) (string, error) {
	if len(n.children) == 0 {
		return "", NewError(n.op+" without operands", WithCode(CodeEmptyExpression))
	}
	parts := make([]string, len(n.children))
	for i, child := range n.children {
		s, err := c.condition(child)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, " "+n.op+" ") + ")", nil
}

type negation struct {
	child Condition
}

func (n *negation) compileCondition(c *compiler) (string, error) {
	s, err := c.condition(n.child)
	if err != nil {
		return "", err
	}
	return "NOT " + s, nil
}
