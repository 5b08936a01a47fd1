package workflow

import "sort"

// Resequence returns a copy of stages with each sub-stage's Sequence set to a
// single counter from 1, walking stages by Order then sub-stages by Order.
// Nothing else changes.
func Resequence(stages []ConfigStage) []ConfigStage {
	out := cloneStages(stages)
	resequence(out)
	return out
}

// Renumber returns a copy of stages with Order reassigned 1..N from list position,
// for stages and for sub-stages within each stage.
func Renumber(stages []ConfigStage) []ConfigStage {
	out := cloneStages(stages)
	renumber(out)
	return out
}

func resequence(stages []ConfigStage) {
	n := 1
	for _, si := range byOrder(len(stages), func(i int) int { return stages[i].Order }) {
		subs := stages[si].SubStages
		for _, j := range byOrder(len(subs), func(i int) int { return subs[i].Order }) {
			subs[j].Sequence = n
			n++
		}
	}
}

func renumber(stages []ConfigStage) {
	for i := range stages {
		stages[i].Order = i + 1
		for j := range stages[i].SubStages {
			stages[i].SubStages[j].Order = j + 1
		}
	}
}

// byOrder returns positions 0..n-1 stably sorted by order(i).
func byOrder(n int, order func(int) int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return order(idx[a]) < order(idx[b]) })
	return idx
}
