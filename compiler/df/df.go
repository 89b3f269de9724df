package df

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/set"
)

type (
	Direction int
	Meet      int

	// Problem is a dataflow problem over the blocks of one function.
	// Blocks are addressed by their position index; gen and kill are
	// supplied by the caller.
	Problem[K ~int] struct {
		Dir  Direction
		Meet Meet

		Blocks int
		Succs  func(b int) []int

		Gen  func(b int) set.Bits[K]
		Kill func(b int) set.Bits[K]

		// Boundary seeds blocks with no predecessors (forward) or no
		// successors (backward).
		Boundary set.Bits[K]

		// Top initializes every block for intersect problems, where
		// iteration refines from above.
		Top set.Bits[K]
	}

	Result[K ~int] struct {
		In  []set.Bits[K]
		Out []set.Bits[K]
	}
)

const (
	Forward Direction = iota
	Backward
)

const (
	Union Meet = iota
	Intersect
)

// Solve iterates the problem to a fixpoint with a worklist ordered by
// block index, forward problems front to back and backward problems
// back to front. Solving an already converged instance changes
// nothing.
func Solve[K ~int](ctx context.Context, p Problem[K]) Result[K] {
	tr := tlog.SpanFromContext(ctx)

	n := p.Blocks

	r := Result[K]{
		In:  make([]set.Bits[K], n),
		Out: make([]set.Bits[K], n),
	}

	if p.Meet == Intersect {
		for b := 0; b < n; b++ {
			r.In[b] = p.Top.Copy()
			r.Out[b] = p.Top.Copy()
		}
	}

	preds := make([][]int, n)

	for b := 0; b < n; b++ {
		for _, s := range p.Succs(b) {
			preds[s] = append(preds[s], b)
		}
	}

	less := func(d []int, i, j int) bool { return d[i] < d[j] }
	if p.Dir == Backward {
		less = func(d []int, i, j int) bool { return d[i] > d[j] }
	}

	work := heap.Heap[int]{Less: less}
	inq := set.Make[int]()

	for b := 0; b < n; b++ {
		work.Push(b)
		inq.Set(b)
	}

	rounds := 0

	for work.Len() != 0 {
		b := work.Pop()
		inq.Clear(b)
		rounds++

		from, to := preds[b], p.Succs(b)
		if p.Dir == Backward {
			from, to = p.Succs(b), preds[b]
		}

		met := p.meet(from, &r)

		gen := p.Gen(b)

		trans := gen.Copy()
		rest := met.Copy()
		rest.AndNot(p.Kill(b))
		trans.Or(rest)

		var entry, exit *set.Bits[K]
		if p.Dir == Forward {
			entry, exit = &r.In[b], &r.Out[b]
		} else {
			entry, exit = &r.Out[b], &r.In[b]
		}

		if entry.Equal(met) && exit.Equal(trans) {
			continue
		}

		*entry, *exit = met, trans

		for _, s := range to {
			if inq.IsSet(s) {
				continue
			}

			work.Push(s)
			inq.Set(s)
		}
	}

	tr.V("df").Printw("dataflow solved", "blocks", n, "rounds", rounds)

	return r
}

func (p Problem[K]) meet(from []int, r *Result[K]) set.Bits[K] {
	exitOf := func(b int) *set.Bits[K] {
		if p.Dir == Forward {
			return &r.Out[b]
		}

		return &r.In[b]
	}

	if len(from) == 0 {
		return p.Boundary.Copy()
	}

	met := exitOf(from[0]).Copy()

	for _, b := range from[1:] {
		switch p.Meet {
		case Union:
			met.Or(*exitOf(b))
		case Intersect:
			met.And(*exitOf(b))
		}
	}

	return met
}
