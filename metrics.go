package record

import (
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OperationMetrics describes one completed call.
type OperationMetrics struct {
	Op         OpKind
	Table      string
	Duration   time.Duration
	ReadUnits  float64
	WriteUnits float64
	Items      int
	Scanned    int
	Chunks     int
	Retries    int
}

// MetricsCollector is called after every call that reached the network.
type MetricsCollector interface {
	Add(m OperationMetrics) error
	Flush() error
}

// MonitorFunc is an optional hook called after each call.
type MonitorFunc func(m OperationMetrics) error

func (m *OperationMetrics) addConsumed(cc ...types.ConsumedCapacity) {
	for _, c := range cc {
		switch {
		case c.ReadCapacityUnits != nil || c.WriteCapacityUnits != nil:
			if c.ReadCapacityUnits != nil {
				m.ReadUnits += *c.ReadCapacityUnits
			}
			if c.WriteCapacityUnits != nil {
				m.WriteUnits += *c.WriteCapacityUnits
			}
		case c.CapacityUnits != nil:
			if m.Op.reads() {
				m.ReadUnits += *c.CapacityUnits
			} else {
				m.WriteUnits += *c.CapacityUnits
			}
		}
	}
}

func (k OpKind) reads() bool {
	switch k {
	case OpGet, OpQuery, OpScan, OpBatchGet, OpTransactGet, OpStatement:
		return true
	}
	return false
}

// OpTotals accumulates metrics of one operation kind.
type OpTotals struct {
	Calls      int
	Duration   time.Duration
	ReadUnits  float64
	WriteUnits float64
	Items      int
	Retries    int
}

// Totals is an in-memory MetricsCollector aggregating per operation kind.
type Totals struct {
	mu  sync.Mutex
	ops map[OpKind]*OpTotals
}

func NewTotals() *Totals {
	return &Totals{ops: map[OpKind]*OpTotals{}}
}

func (t *Totals) Add(m OperationMetrics) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg, ok := t.ops[m.Op]
	if !ok {
		agg = &OpTotals{}
		t.ops[m.Op] = agg
	}
	agg.Calls++
	agg.Duration += m.Duration
	agg.ReadUnits += m.ReadUnits
	agg.WriteUnits += m.WriteUnits
	agg.Items += m.Items
	agg.Retries += m.Retries
	return nil
}

// Flush resets the totals.
func (t *Totals) Flush() error {
	t.mu.Lock()
	t.ops = map[OpKind]*OpTotals{}
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current totals.
func (t *Totals) Snapshot() map[OpKind]OpTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[OpKind]OpTotals, len(t.ops))
	for k, v := range t.ops {
		out[k] = *v
	}
	return out
}
