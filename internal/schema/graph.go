package schema

import (
	"fmt"
	"sort"
)

// DependencyGraph is the dependsOn graph of one questionnaire.
type DependencyGraph struct {
	Questions map[string]*QuestionDef
	Edges     map[string][]string // question -> questions that depend on it
	InDegree  map[string]int      // question -> number of dependencies
}

// ValidateQuestions checks ids and dependency references of a questionnaire.
// Cycles are reported separately by HasCycle.
func ValidateQuestions(questions []QuestionDef) error {
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("question has empty id")
		}
		if seen[q.ID] {
			return fmt.Errorf("question %s: duplicate id", q.ID)
		}
		seen[q.ID] = true
	}

	for _, q := range questions {
		for _, dep := range q.DependsOn.IDs {
			if dep == q.ID {
				return fmt.Errorf("question %s: depends on itself", q.ID)
			}
			if !seen[dep] {
				return fmt.Errorf("question %s: depends on non-existent question %s", q.ID, dep)
			}
		}
		if !q.DependsOn.Empty() && q.DependsOnValue.Empty() {
			return fmt.Errorf("question %s: depends_on without depends_on_value", q.ID)
		}
	}

	return nil
}

// ValidateOrder checks that every dependency is declared before the question
// that depends on it.
func ValidateOrder(questions []QuestionDef) error {
	pos := make(map[string]int, len(questions))
	for i, q := range questions {
		pos[q.ID] = i
	}
	for i, q := range questions {
		for _, dep := range q.DependsOn.IDs {
			if pos[dep] > i {
				return fmt.Errorf("question %s: depends on later question %s", q.ID, dep)
			}
		}
	}
	return nil
}

// ValidateSections checks the section membership table against the questions.
func ValidateSections(questions []QuestionDef, sections []Section) error {
	byID := make(map[string]QuestionDef, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	owner := make(map[string]string)
	for _, s := range sections {
		head, ok := byID[s.ID]
		if !ok {
			return fmt.Errorf("section %s: no such question", s.ID)
		}
		if !head.IsSection() {
			return fmt.Errorf("section %s: question kind is %s, not section", s.ID, head.Kind)
		}
		for _, m := range s.Members {
			q, ok := byID[m]
			if !ok {
				return fmt.Errorf("section %s: member %s does not exist", s.ID, m)
			}
			if q.IsSection() {
				return fmt.Errorf("section %s: member %s is itself a section", s.ID, m)
			}
			if prev, dup := owner[m]; dup {
				return fmt.Errorf("section %s: member %s already belongs to section %s", s.ID, m, prev)
			}
			owner[m] = s.ID
		}
	}
	return nil
}

// BuildDependencyGraph constructs the graph for a list of questions. Unknown
// dependencies are skipped; ValidateQuestions reports them.
func BuildDependencyGraph(questions []QuestionDef) *DependencyGraph {
	g := &DependencyGraph{
		Questions: make(map[string]*QuestionDef, len(questions)),
		Edges:     make(map[string][]string),
		InDegree:  make(map[string]int, len(questions)),
	}

	for i := range questions {
		g.Questions[questions[i].ID] = &questions[i]
		g.InDegree[questions[i].ID] = 0
	}

	for _, q := range questions {
		for _, dep := range q.DependsOn.IDs {
			if _, exists := g.Questions[dep]; !exists {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], q.ID)
			g.InDegree[q.ID]++
		}
	}

	return g
}

// HasCycle detects if the graph contains a cycle using DFS with color marking.
func (g *DependencyGraph) HasCycle() bool {
	const (
		white = 0 // not visited
		gray  = 1 // visiting
		black = 2 // visited
	)

	colors := make(map[string]int, len(g.Questions))

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, next := range g.Edges[node] {
			if colors[next] == gray {
				return true
			}
			if colors[next] == white && dfs(next) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	ids := make([]string, 0, len(g.Questions))
	for id := range g.Questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if colors[id] == white && dfs(id) {
			return true
		}
	}
	return false
}

// Dependents returns the direct dependents of id.
func (g *DependencyGraph) Dependents(id string) []string {
	out := make([]string, len(g.Edges[id]))
	copy(out, g.Edges[id])
	return out
}
