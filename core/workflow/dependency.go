package workflow

import "fmt"

// TargetSubStage is one selectable dependency target.
type TargetSubStage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DependencyTarget groups eligible targets by stage.
type DependencyTarget struct {
	StageID   string           `json:"stageId"`
	StageName string           `json:"stageName"`
	SubStages []TargetSubStage `json:"subStages"`
}

// EligibleTargets lists the sub-stages the one at (stageIndex, subStageIndex) may
// depend on: every sub-stage of an earlier stage plus earlier sub-stages of its
// own stage. Stages with nothing eligible are omitted.
func EligibleTargets(stages []ConfigStage, stageIndex, subStageIndex int) []DependencyTarget {
	if stageIndex < 0 || stageIndex >= len(stages) {
		return nil
	}
	if subStageIndex < 0 || subStageIndex >= len(stages[stageIndex].SubStages) {
		return nil
	}
	out := []DependencyTarget{}
	for i := 0; i <= stageIndex; i++ {
		limit := len(stages[i].SubStages)
		if i == stageIndex {
			limit = subStageIndex
		}
		if limit == 0 {
			continue
		}
		target := DependencyTarget{StageID: stages[i].ID, StageName: stages[i].Name}
		for _, sub := range stages[i].SubStages[:limit] {
			target.SubStages = append(target.SubStages, TargetSubStage{ID: sub.ID, Name: sub.Name})
		}
		out = append(out, target)
	}
	return out
}

// WouldCreateCycle reports whether making target depend on candidate would close
// a cycle, i.e. candidate already reaches target through dependency edges.
// A self edge counts as a cycle.
func WouldCreateCycle(stages []ConfigStage, candidateStageID, candidateSubStageID, targetStageID, targetSubStageID string) bool {
	target := SubStageRef{StageID: targetStageID, SubStageID: targetSubStageID}
	start := SubStageRef{StageID: candidateStageID, SubStageID: candidateSubStageID}
	if start == target {
		return true
	}
	visited := map[SubStageRef]bool{}
	var reaches func(ref SubStageRef) bool
	reaches = func(ref SubStageRef) bool {
		if ref == target {
			return true
		}
		if visited[ref] {
			return false
		}
		visited[ref] = true
		si, ji := findSubStage(stages, ref.StageID, ref.SubStageID)
		if ji < 0 {
			return false
		}
		for _, dep := range stages[si].SubStages[ji].Dependencies {
			if reaches(SubStageRef{StageID: dep.StageID, SubStageID: dep.SubStageID}) {
				return true
			}
		}
		return false
	}
	return reaches(start)
}

// DependencyName is the display name stored on a dependency edge.
func DependencyName(stageName, subStageName string) string {
	return stageName + " - " + subStageName
}

// isEarlier reports whether (ti, tj) strictly precedes (si, sj) in stage/sub-stage order.
func isEarlier(ti, tj, si, sj int) bool {
	return ti < si || (ti == si && tj < sj)
}

// detectCycle runs a three-colour DFS over all dependency edges and returns the
// first sub-stage found on a cycle.
func detectCycle(stages []ConfigStage) (SubStageRef, bool) {
	const (
		unvisited = iota
		inStack
		done
	)
	state := map[SubStageRef]int{}
	var visit func(ref SubStageRef) bool
	visit = func(ref SubStageRef) bool {
		switch state[ref] {
		case done:
			return false
		case inStack:
			return true
		}
		state[ref] = inStack
		si, ji := findSubStage(stages, ref.StageID, ref.SubStageID)
		if ji >= 0 {
			for _, dep := range stages[si].SubStages[ji].Dependencies {
				if visit(SubStageRef{StageID: dep.StageID, SubStageID: dep.SubStageID}) {
					return true
				}
			}
		}
		state[ref] = done
		return false
	}
	for _, st := range stages {
		for _, sub := range st.SubStages {
			ref := SubStageRef{StageID: st.ID, SubStageID: sub.ID}
			if state[ref] == unvisited && visit(ref) {
				return ref, true
			}
		}
	}
	return SubStageRef{}, false
}

func (r SubStageRef) String() string {
	return fmt.Sprintf("%s/%s", r.StageID, r.SubStageID)
}
