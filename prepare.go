package record

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OpKind names a logical operation.
type OpKind string

const (
	OpGet    OpKind = "get"
	OpPut    OpKind = "put"
	OpDelete OpKind = "delete"
	OpUpdate OpKind = "update"
	OpQuery  OpKind = "query"
	OpScan   OpKind = "scan"
	// OpCheck is a condition check inside a write transaction.
	OpCheck OpKind = "check"

	OpBatchGet      OpKind = "batchGet"
	OpBatchWrite    OpKind = "batchWrite"
	OpTransactGet   OpKind = "transactGet"
	OpTransactWrite OpKind = "transactWrite"
	OpStatement     OpKind = "statement"
)

// Operation describes one logical request in terms of logical names and
// typed values.
type Operation struct {
	Kind OpKind

	// Key holds the primary key for get, delete, update and check. For query
	// it holds the hash key value of the selected index.
	Key Item
	// Item is the full record of a put.
	Item Item

	Condition  Condition
	Updates    []UpdateOp
	Projection []string

	// KeyCondition restricts the range key of a query.
	KeyCondition Condition
	// Filter is applied after reading; undeclared attributes are allowed.
	Filter        Condition
	Index         string
	Limit         int32
	StartKey      map[string]types.AttributeValue
	Descending    bool
	Consistent    bool
	Segment       int32
	TotalSegments int32
	Count         bool

	ReturnValues types.ReturnValue
	// ReturnOldOnConditionFailure asks for the stored item when the condition fails.
	ReturnOldOnConditionFailure bool

	// Version is the expected stored version for update and delete. A put
	// reads it from Item instead.
	Version     *int64
	SkipVersion bool
}

// PreparedRequest is a fully encoded request for one logical operation.
type PreparedRequest struct {
	Kind  OpKind
	Table string

	Key  map[string]types.AttributeValue
	Item map[string]types.AttributeValue

	KeyCondition string
	Filter       string
	Condition    string
	Update       string
	Projection   string
	Names        map[string]string
	Values       map[string]types.AttributeValue

	IndexName     string
	Consistent    bool
	Limit         int32
	StartKey      map[string]types.AttributeValue
	Descending    bool
	Segment       int32
	TotalSegments int32
	Select        types.Select

	ReturnValues             types.ReturnValue
	ReturnOnConditionFailure types.ReturnValuesOnConditionCheckFailure

	// Size is the estimated payload size in bytes.
	Size int
	// NewVersion is the version this request writes, if versioned.
	NewVersion *int64
}

// Prepare validates op and encodes it. It performs no I/O.
func (s *Schema) Prepare(op Operation) (*PreparedRequest, error) {
	req := &PreparedRequest{Kind: op.Kind, Table: s.Table}
	c := newCompiler(s.names)
	var err error

	switch op.Kind {
	case OpGet:
		req.Key, err = s.EncodeKey(op.Key)
		req.Consistent = op.Consistent

	case OpPut:
		err = s.preparePut(op, req, c)

	case OpDelete:
		if req.Key, err = s.EncodeKey(op.Key); err == nil {
			err = s.prepareCondition(op.Condition, s.versionCheck(op), req, c)
		}

	case OpUpdate:
		err = s.prepareUpdate(op, req, c)

	case OpCheck:
		if op.Condition == nil {
			return nil, NewError("condition check without a condition", WithCode(CodeEmptyExpression))
		}
		if req.Key, err = s.EncodeKey(op.Key); err == nil {
			err = s.prepareCondition(op.Condition, nil, req, c)
		}

	case OpQuery:
		err = s.prepareQuery(op, req, c)

	case OpScan:
		err = s.prepareScan(op, req, c)

	default:
		return nil, NewArgError(fmt.Sprintf("unsupported operation %q", op.Kind))
	}
	if err != nil {
		return nil, err
	}

	if len(op.Projection) > 0 {
		if req.Projection, err = c.projection(op.Projection); err != nil {
			return nil, err
		}
	}
	if err := s.prepareReturn(op, req); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	if len(c.ph.Names) > 0 {
		req.Names = c.ph.Names
	}
	if len(c.ph.Values) > 0 {
		req.Values = c.ph.Values
	}
	if req.Size == 0 {
		req.Size = ItemSize(req.Key) + ItemSize(req.Values)
	}
	return req, nil
}

func (s *Schema) preparePut(op Operation, req *PreparedRequest, c *compiler) error {
	item := op.Item
	var versionCond Condition
	if v := s.version; v != nil && !op.SkipVersion {
		current, err := versionValue(v.Name, item[v.Name])
		if err != nil {
			return err
		}
		if current == nil {
			current = op.Version
		}
		next := int64(1)
		if current == nil {
			versionCond = Attr(v.Name).NotExists()
		} else {
			versionCond = Attr(v.Name).Eq(*current)
			next = *current + 1
		}
		item = copyItem(item)
		item[v.Name] = next
		req.NewVersion = &next
	}
	var err error
	if req.Item, err = s.EncodeItem(item); err != nil {
		return err
	}
	if req.Key, err = s.KeyOf(item); err != nil {
		return err
	}
	req.Size = ItemSize(req.Item)
	if req.Size > MaxItemSize {
		return NewError(fmt.Sprintf("item size %d exceeds %d bytes", req.Size, MaxItemSize),
			WithCode(CodePayloadTooLarge), WithContext(map[string]any{"size": req.Size}))
	}
	return s.prepareCondition(op.Condition, versionCond, req, c)
}

func (s *Schema) prepareUpdate(op Operation, req *PreparedRequest, c *compiler) error {
	var err error
	if req.Key, err = s.EncodeKey(op.Key); err != nil {
		return err
	}
	if len(op.Updates) == 0 {
		return NewError("update without operations", WithCode(CodeEmptyExpression))
	}
	updates := op.Updates
	for _, u := range updates {
		elems, err := parsePath(u.path)
		if err != nil {
			return err
		}
		if a, ok := s.attrs[elems[0].name]; ok {
			if a.Key != KeyNone {
				return NewError("key attributes cannot be updated", WithCode(CodeArgument), WithPath(u.path))
			}
			if a.Version && !op.SkipVersion {
				return NewError("version attribute is managed automatically", WithCode(CodeArgument), WithPath(u.path))
			}
		}
	}
	var versionCond Condition
	if v := s.version; v != nil && !op.SkipVersion {
		next := int64(1)
		if op.Version == nil {
			versionCond = Attr(v.Name).NotExists()
		} else {
			versionCond = Attr(v.Name).Eq(*op.Version)
			next = *op.Version + 1
		}
		updates = append(append([]UpdateOp(nil), updates...), Set(v.Name, next))
		req.NewVersion = &next
	}
	if req.Update, err = c.update(updates); err != nil {
		return err
	}
	if err := s.prepareCondition(op.Condition, versionCond, req, c); err != nil {
		return err
	}
	req.Size = ItemSize(req.Key) + ItemSize(c.ph.Values)
	if req.Size > MaxItemSize {
		return NewError(fmt.Sprintf("update size %d exceeds %d bytes", req.Size, MaxItemSize),
			WithCode(CodePayloadTooLarge), WithContext(map[string]any{"size": req.Size}))
	}
	return nil
}

// versionCheck returns the optimistic-locking condition for a delete.
func (s *Schema) versionCheck(op Operation) Condition {
	if s.version == nil || op.SkipVersion || op.Version == nil {
		return nil
	}
	return Attr(s.version.Name).Eq(*op.Version)
}

func (s *Schema) prepareCondition(user, extra Condition, req *PreparedRequest, c *compiler) error {
	cond := user
	switch {
	case user != nil && extra != nil:
		cond = And(user, extra)
	case user == nil:
		cond = extra
	}
	if cond == nil {
		return nil
	}
	expr, err := c.condition(cond)
	if err != nil {
		return err
	}
	req.Condition = expr
	return nil
}

func (s *Schema) prepareQuery(op Operation, req *PreparedRequest, c *compiler) error {
	idx, err := s.Index(op.Index)
	if err != nil {
		return err
	}
	if idx != s.primary {
		req.IndexName = idx.Name
	}
	hashValue, ok := op.Key[idx.Hash.Name]
	if !ok || indirect(hashValue) == nil {
		return NewError(fmt.Sprintf("query requires the hash key %q", idx.Hash.Name),
			WithCode(CodeArgument), WithPath(idx.Hash.Name))
	}
	keyExpr, err := Attr(idx.Hash.Name).Eq(hashValue).compileCondition(c)
	if err != nil {
		return err
	}
	if op.KeyCondition != nil {
		if err := checkRangeCondition(op.KeyCondition, idx); err != nil {
			return err
		}
		rangeExpr, err := c.condition(op.KeyCondition)
		if err != nil {
			return err
		}
		keyExpr += " AND " + rangeExpr
	}
	req.KeyCondition = keyExpr
	if err := s.prepareFilter(op.Filter, req, c); err != nil {
		return err
	}
	req.Consistent = op.Consistent
	req.Limit = op.Limit
	req.StartKey = op.StartKey
	req.Descending = op.Descending
	if op.Count {
		req.Select = types.SelectCount
	}
	return nil
}

func (s *Schema) prepareScan(op Operation, req *PreparedRequest, c *compiler) error {
	if op.Index != "" {
		idx, err := s.Index(op.Index)
		if err != nil {
			return err
		}
		if idx != s.primary {
			req.IndexName = idx.Name
		}
	}
	if op.TotalSegments < 0 || (op.TotalSegments > 0 && (op.Segment < 0 || op.Segment >= op.TotalSegments)) {
		return NewArgError(fmt.Sprintf("invalid scan segment %d of %d", op.Segment, op.TotalSegments))
	}
	if err := s.prepareFilter(op.Filter, req, c); err != nil {
		return err
	}
	req.Consistent = op.Consistent
	req.Limit = op.Limit
	req.StartKey = op.StartKey
	req.Segment = op.Segment
	req.TotalSegments = op.TotalSegments
	if op.Count {
		req.Select = types.SelectCount
	}
	return nil
}

// prepareFilter compiles a filter with the permissive name view.
func (s *Schema) prepareFilter(filter Condition, req *PreparedRequest, c *compiler) error {
	if filter == nil {
		return nil
	}
	c.names = c.names.Permissive()
	defer func() { c.names = c.names.Strict() }()
	expr, err := c.condition(filter)
	if err != nil {
		return err
	}
	req.Filter = expr
	return nil
}

// checkRangeCondition accepts only the forms a key condition allows.
func checkRangeCondition(cond Condition, idx *Index) error {
	if idx.Range == nil {
		return NewArgError("index has no range key to condition on")
	}
	var path string
	switch n := cond.(type) {
	case *comparison:
		if n.op == OpNe {
			return NewError("<> is not allowed in a key condition", WithCode(CodeArgument), WithPath(n.path))
		}
		path = n.path
	case *between:
		path = n.path
	case *beginsWith:
		path = n.path
	default:
		return NewArgError("key condition must be a comparison, between or begins_with")
	}
	if path != idx.Range.Name {
		return NewError(fmt.Sprintf("key condition must target range key %q", idx.Range.Name),
			WithCode(CodeArgument), WithPath(path))
	}
	return nil
}

var allowedReturns = map[OpKind]map[types.ReturnValue]bool{
	OpPut:    {types.ReturnValueNone: true, types.ReturnValueAllOld: true},
	OpDelete: {types.ReturnValueNone: true, types.ReturnValueAllOld: true},
	OpUpdate: {
		types.ReturnValueNone: true, types.ReturnValueAllOld: true, types.ReturnValueUpdatedOld: true,
		types.ReturnValueAllNew: true, types.ReturnValueUpdatedNew: true,
	},
}

func (s *Schema) prepareReturn(op Operation, req *PreparedRequest) error {
	if op.ReturnValues != "" {
		if !allowedReturns[op.Kind][op.ReturnValues] {
			return NewArgError(fmt.Sprintf("return values %q not allowed for %s", op.ReturnValues, op.Kind))
		}
		req.ReturnValues = op.ReturnValues
	}
	if op.ReturnOldOnConditionFailure {
		req.ReturnOnConditionFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}
	return nil
}

func versionValue(path string, v any) (*int64, error) {
	if indirect(v) == nil {
		return nil, nil
	}
	text, err := integerText(path, v)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, precisionLoss(path, "version %s does not fit int64", text)
	}
	return &n, nil
}

func copyItem(item Item) Item {
	out := make(Item, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	return out
}
