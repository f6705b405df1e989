/*
Package record – expression compiler.

Condition trees and update lists compile into placeholder-parameterized
expression strings. Names become `#_N` placeholders, one per distinct wire
path segment; literals become `:_N` placeholders, one per occurrence.
*/
package record

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Placeholders holds the name and value substitutions of a compiled request.
type Placeholders struct {
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// Len is the number of distinct placeholders.
func (p *Placeholders) Len() int { return len(p.Names) + len(p.Values) }

// compiler carries the placeholder counters for one request. Every expression
// of that request (key condition, filter, condition, update, projection) is
// compiled through the same compiler so placeholders never collide.
type compiler struct {
	names   *NameTable
	nameIdx map[string]int
	ph      Placeholders
	nindex  int
	vindex  int
}

func newCompiler(names *NameTable) *compiler {
	return &compiler{
		names:   names,
		nameIdx: map[string]int{},
		ph: Placeholders{
			Names:  map[string]string{},
			Values: map[string]types.AttributeValue{},
		},
	}
}

// CompileCondition compiles a condition tree against names.
func CompileCondition(cond Condition, names *NameTable) (string, *Placeholders, error) {
	c := newCompiler(names)
	expr, err := c.condition(cond)
	if err != nil {
		return "", nil, err
	}
	if err := c.check(); err != nil {
		return "", nil, err
	}
	return expr, c.placeholders(), nil
}

// CompileUpdate compiles an update list against names. Clauses are emitted in
// SET, REMOVE, ADD, DELETE order; terms keep caller order within a clause.
func CompileUpdate(ops []UpdateOp, names *NameTable) (string, *Placeholders, error) {
	c := newCompiler(names)
	expr, err := c.update(ops)
	if err != nil {
		return "", nil, err
	}
	if err := c.check(); err != nil {
		return "", nil, err
	}
	return expr, c.placeholders(), nil
}

func (c *compiler) condition(cond Condition) (string, error) {
	if cond == nil {
		return "", NewError("empty condition", WithCode(CodeEmptyExpression))
	}
	return cond.compileCondition(c)
}

func (c *compiler) update(ops []UpdateOp) (string, error) {
	if len(ops) == 0 {
		return "", NewError("empty update list", WithCode(CodeEmptyExpression))
	}
	var clauses updateClauses
	for _, op := range ops {
		if err := op.compile(c, &clauses); err != nil {
			return "", err
		}
	}
	var parts []string
	if len(clauses.set) > 0 {
		parts = append(parts, "SET "+strings.Join(clauses.set, ", "))
	}
	if len(clauses.remove) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(clauses.remove, ", "))
	}
	if len(clauses.add) > 0 {
		parts = append(parts, "ADD "+strings.Join(clauses.add, ", "))
	}
	if len(clauses.del) > 0 {
		parts = append(parts, "DELETE "+strings.Join(clauses.del, ", "))
	}
	return strings.Join(parts, " "), nil
}

func (c *compiler) projection(paths []string) (string, error) {
	targets := make([]string, 0, len(paths))
	for _, p := range paths {
		t, err := c.path(p)
		if err != nil {
			return "", err
		}
		targets = append(targets, t)
	}
	return strings.Join(targets, ", "), nil
}

// path resolves a logical path and substitutes a name placeholder for every
// map-key segment. List indices stay literal.
func (c *compiler) path(logical string) (string, error) {
	elems, err := parsePath(logical)
	if err != nil {
		return "", err
	}
	wire, err := c.names.wireName(elems[0].name)
	if err != nil {
		return "", atPath(err, logical)
	}
	elems[0].name = wire
	var b strings.Builder
	for i, e := range elems {
		if e.isIndex {
			fmt.Fprintf(&b, "[%d]", e.index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(c.addName(e.name))
	}
	return b.String(), nil
}

// declared is the type of a top-level attribute path; nested paths are TypeAny.
func (c *compiler) declared(logical string) AttrType {
	if strings.ContainsAny(logical, ".[") {
		return TypeAny
	}
	return c.names.typeOf(logical)
}

func (c *compiler) literal(path string, v any, t AttrType) (string, error) {
	av, err := encodeValue(path, v, t)
	if err != nil {
		return "", err
	}
	return c.addValue(av), nil
}

func (c *compiler) addName(name string) string {
	idx, ok := c.nameIdx[name]
	if !ok {
		idx = c.nindex
		c.nindex++
		c.nameIdx[name] = idx
		c.ph.Names[fmt.Sprintf("#_%d", idx)] = name
	}
	return fmt.Sprintf("#_%d", idx)
}

func (c *compiler) addValue(av types.AttributeValue) string {
	key := fmt.Sprintf(":_%d", c.vindex)
	c.vindex++
	c.ph.Values[key] = av
	return key
}

func (c *compiler) check() error {
	if n := c.ph.Len(); n > MaxPlaceholders {
		return NewError(fmt.Sprintf("%d placeholders exceed the limit of %d", n, MaxPlaceholders),
			WithCode(CodeTooManyClauses), WithContext(map[string]any{"names": c.nindex, "values": c.vindex}))
	}
	return nil
}

func (c *compiler) placeholders() *Placeholders {
	return &Placeholders{Names: c.ph.Names, Values: c.ph.Values}
}
