package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dep(id string, on ...string) QuestionDef {
	q := QuestionDef{ID: id, Kind: KindYesNo}
	if len(on) > 0 {
		q.DependsOn = Refs{IDs: on, List: len(on) > 1}
		q.DependsOnValue = Values{Items: []string{"yes"}}
	}
	return q
}

func TestBuildDependencyGraph(t *testing.T) {
	qs := []QuestionDef{dep("a"), dep("b", "a"), dep("c", "a", "b")}
	g := BuildDependencyGraph(qs)

	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, []string{"c"}, g.Dependents("b"))
	assert.Equal(t, 0, g.InDegree["a"])
	assert.Equal(t, 2, g.InDegree["c"])
	assert.False(t, g.HasCycle())
}

func TestHasCycle(t *testing.T) {
	qs := []QuestionDef{dep("a", "c"), dep("b", "a"), dep("c", "b")}
	assert.True(t, BuildDependencyGraph(qs).HasCycle())
}

func TestBuildDependencyGraphSkipsUnknown(t *testing.T) {
	g := BuildDependencyGraph([]QuestionDef{dep("a", "ghost")})
	assert.Equal(t, 0, g.InDegree["a"])
	require.Error(t, ValidateQuestions([]QuestionDef{dep("a", "ghost")}))
}

func TestValidateQuestionsDependsOnWithoutValue(t *testing.T) {
	qs := []QuestionDef{dep("a"), {ID: "b", DependsOn: Refs{IDs: []string{"a"}}}}
	err := ValidateQuestions(qs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without depends_on_value")
}

func TestValidateSectionsMemberTwice(t *testing.T) {
	qs := []QuestionDef{{ID: "s1", Kind: KindSection}, {ID: "s2", Kind: KindSection}, dep("a")}
	err := ValidateSections(qs, []Section{{ID: "s1", Members: []string{"a"}}, {ID: "s2", Members: []string{"a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already belongs")
}

func TestNewQuestionnaire(t *testing.T) {
	q, err := NewQuestionnaire("demo", "Demo", []QuestionDef{dep("a"), dep("b", "a")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Position("b"))
	assert.Equal(t, -1, q.Position("ghost"))
	assert.Equal(t, []string{"b"}, q.Dependents("a"))

	_, err = NewQuestionnaire("demo", "Demo", []QuestionDef{dep("b", "a"), dep("a")}, nil)
	assert.Error(t, err)
}
