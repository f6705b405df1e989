package record

import (
	"fmt"
)

// Chunk is one protocol-legal request group. Indices are positions in the
// caller's input, in input order.
type Chunk struct {
	Indices []int
	Bytes   int
}

// ChunkPlan is the ordered chunking of one caller operation set.
type ChunkPlan struct {
	Chunks []Chunk
	Total  int
}

// PlanBatch splits n operations into stable chunks of at most limit.
func PlanBatch(n, limit int) ChunkPlan {
	plan := ChunkPlan{Total: n}
	if limit <= 0 {
		limit = MaxBatchWriteItems
	}
	for start := 0; start < n; start += limit {
		end := min(start+limit, n)
		idx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			idx = append(idx, i)
		}
		plan.Chunks = append(plan.Chunks, Chunk{Indices: idx})
	}
	return plan
}

// planBySize chunks operations by count and accumulated byte size. A chunk
// closes early when the next item would push it past maxBytes.
func planBySize(sizes []int, maxItems, maxBytes int) ChunkPlan {
	plan := ChunkPlan{Total: len(sizes)}
	var cur Chunk
	for i, size := range sizes {
		if len(cur.Indices) > 0 && (len(cur.Indices) == maxItems || cur.Bytes+size > maxBytes) {
			plan.Chunks = append(plan.Chunks, cur)
			cur = Chunk{}
		}
		cur.Indices = append(cur.Indices, i)
		cur.Bytes += size
	}
	if len(cur.Indices) > 0 {
		plan.Chunks = append(plan.Chunks, cur)
	}
	return plan
}

// PlanTransaction plans a write transaction. A transaction is all-or-nothing,
// so anything that does not fit in a single chunk fails with
// TransactionTooLarge instead of being split into separate calls.
func PlanTransaction(sizes []int) (ChunkPlan, error) {
	plan := planBySize(sizes, MaxTransactionItems, MaxTransactionBytes)
	total := 0
	for _, s := range sizes {
		total += s
	}
	if len(plan.Chunks) > 1 || total > MaxTransactionBytes {
		return plan, NewError(
			fmt.Sprintf("transaction of %d items and %d bytes exceeds %d items or %d bytes",
				len(sizes), total, MaxTransactionItems, MaxTransactionBytes),
			WithCode(CodeTransactionTooLarge),
			WithContext(map[string]any{"items": len(sizes), "bytes": total, "chunks": len(plan.Chunks)}))
	}
	return plan, nil
}

// Indices flattens the plan back into caller order.
func (p ChunkPlan) Indices() []int {
	out := make([]int, 0, p.Total)
	for _, c := range p.Chunks {
		out = append(out, c.Indices...)
	}
	return out
}
