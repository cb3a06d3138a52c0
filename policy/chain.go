package policy

import (
	"slices"
)

// Chain evaluates its evaluators in reason priority order and returns the
// first denial.
type Chain struct {
	evaluators []Evaluator
}

// NewChain orders evaluators by the highest-priority reason each one owns.
// Evaluators with equal priority keep the order they were given in.
func NewChain(evaluators ...Evaluator) *Chain {
	sorted := slices.Clone(evaluators)
	slices.SortStableFunc(sorted, func(a, b Evaluator) int {
		return firstRank(a.Reasons()) - firstRank(b.Reasons())
	})
	return &Chain{evaluators: sorted}
}

func firstRank(s ReasonSet) int {
	best := len(evaluationOrder)
	for _, r := range s.Reasons() {
		if rank := evaluationRank[r]; rank < best {
			best = rank
		}
	}
	return best
}

// Evaluate returns the first denial for message, or the zero Decision when
// the message may proceed. Reasons in bypass are not checked.
func (c *Chain) Evaluate(sender Sender, message string, bypass ReasonSet) Decision {
	for _, ev := range c.evaluators {
		if bypass.HasAll(ev.Reasons()) {
			continue
		}
		if d, ok := ev.TryClassify(sender, message, bypass); ok && !d.Allowed() {
			return d
		}
	}
	return Decision{}
}

// Evaluators returns the evaluators in evaluation order.
func (c *Chain) Evaluators() []Evaluator {
	return slices.Clone(c.evaluators)
}
