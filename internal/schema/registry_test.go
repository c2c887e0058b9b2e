package schema

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/ptw/internal/answers"
)

func TestDefaultRegistryLoads(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"hotWork", "confinedSpace", "workingAtHeight", "electrical",
		"lifting", "blasting", "excavation",
	}, reg.Keys())
	assert.Equal(t, "1.4.0", reg.Version().String())
	assert.Len(t, reg.SingleHazards(), 10)
	assert.NotEmpty(t, reg.CrossTriggers())

	for _, key := range reg.Keys() {
		q, ok := reg.Questionnaire(key)
		require.True(t, ok, key)
		assert.NotEmpty(t, q.Label, key)
		assert.NotEmpty(t, q.Questions, key)
	}
}

func TestDefaultRegistryHotWorkShape(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	q, ok := reg.Questionnaire("hotWork")
	require.True(t, ok)

	gas, ok := q.Question("gas_testing")
	require.True(t, ok)
	assert.True(t, gas.IsSection())
	assert.True(t, gas.DependsOn.List)
	assert.Equal(t, []string{"confined_space", "work_type"}, gas.DependsOn.IDs)
	assert.True(t, gas.DependsOnValue.List)
	assert.Equal(t, []string{"yes", "cutting"}, gas.DependsOnValue.Items)

	protected, _ := q.Question("flammables_protected")
	assert.False(t, protected.DependsOn.List)
	assert.Equal(t, []string{"no"}, protected.DependsOnValue.Items)

	section, ok := q.SectionOf("lel_above_limit")
	require.True(t, ok)
	assert.Equal(t, "gas_testing", section)
	assert.Equal(t, []string{"gas_test_result", "lel_above_limit", "continuous_monitoring"}, q.Members("gas_testing"))
	assert.Contains(t, q.Dependents("confined_space"), "gas_testing")
}

func TestCrossTriggerFragmentDefaultsToAnswer(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	var found bool
	for _, tr := range reg.CrossTriggers() {
		assert.NotEmpty(t, tr.Fragment)
		if tr.Source == "hotWork" && tr.Question == "confined_space" {
			found = true
			assert.Equal(t, answers.FragmentAnswer, tr.Fragment)
			assert.Equal(t, "yes", tr.Value)
			assert.Equal(t, "confinedSpace", tr.Target)
		}
	}
	assert.True(t, found)
}

func TestQuestionsUnknownKeyIsNil(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Nil(t, reg.Questions("noSuchPermit"))
	_, ok := reg.Questionnaire("noSuchPermit")
	assert.False(t, ok)
}

func TestQuestionsReturnsCopy(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	qs := reg.Questions("blasting")
	require.NotEmpty(t, qs)
	qs[0].ID = "mutated"
	assert.NotEqual(t, "mutated", reg.Questions("blasting")[0].ID)
}

func TestCompatible(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	tests := []struct {
		version string
		want    bool
	}{
		{"1.4.0", true},
		{"1.0.0", true},
		{"1.5.0", false},
		{"2.0.0", false},
		{"0.9.0", false},
		{"not-a-version", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Compatible(tt.version))
		})
	}
}

func TestControlsValue(t *testing.T) {
	tests := []struct {
		name   string
		def    QuestionDef
		want   string
		wantOK bool
	}{
		{"default", QuestionDef{Kind: KindYesNo}, "yes", true},
		{"explicit", QuestionDef{Kind: KindYesNo, ControlsTrigger: "no"}, "no", true},
		{"none", QuestionDef{Kind: KindYesNo, ControlsTrigger: NoControls}, "", false},
		{"section", QuestionDef{Kind: KindSection}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.def.ControlsValue()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

const testRegistry = `version: "2.1.0"
questionnaires: [alpha, beta]
single_hazards:
  - key: noise
    label: Noise
cross_triggers:
  - source: alpha
    question: method
    fragment: other
    value: rope
    target: beta
`

const testBeta = `key: beta
label: Beta
questions:
  - id: q1
    text: First
    kind: yes_no
`

func testFS(alpha string) fstest.MapFS {
	return fstest.MapFS{
		"registry.yaml":             {Data: []byte(testRegistry)},
		"questionnaires/alpha.yaml": {Data: []byte(alpha)},
		"questionnaires/beta.yaml":  {Data: []byte(testBeta)},
	}
}

func TestLoadFSCustomRegistry(t *testing.T) {
	alpha := `key: alpha
label: Alpha
questions:
  - id: method
    text: Method
    kind: multi_choice
    options:
      - value: ladder
        label: Ladder
      - value: other
        label: Other
        text_label: Describe
`
	reg, err := LoadFS(testFS(alpha))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, reg.Keys())
	triggers := reg.CrossTriggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, answers.OptionFragment("other"), triggers[0].Fragment)
	assert.True(t, reg.Compatible("2.0.3"))

	def, ok := reg.Questions("alpha")[0].Option("other")
	require.True(t, ok)
	assert.Equal(t, "Describe", def.TextLabel)
}

func TestLoadFSRejectsBadQuestionnaires(t *testing.T) {
	tests := []struct {
		name    string
		alpha   string
		wantErr string
	}{
		{
			name: "duplicate id",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no}
  - {id: method, text: B, kind: yes_no}
`,
			wantErr: "duplicate id",
		},
		{
			name: "unknown dependency",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no, depends_on: ghost, depends_on_value: "yes"}
`,
			wantErr: "non-existent question ghost",
		},
		{
			name: "self reference",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no, depends_on: method, depends_on_value: "yes"}
`,
			wantErr: "depends on itself",
		},
		{
			name: "forward reference",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no, depends_on: later, depends_on_value: "yes"}
  - {id: later, text: B, kind: yes_no}
`,
			wantErr: "depends on later question later",
		},
		{
			name: "cycle",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no, depends_on: other, depends_on_value: "yes"}
  - {id: other, text: B, kind: yes_no, depends_on: method, depends_on_value: "yes"}
`,
			wantErr: "circular dependency",
		},
		{
			name: "section member missing",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: section}
sections:
  - {id: method, members: [ghost]}
`,
			wantErr: "member ghost does not exist",
		},
		{
			name: "section header wrong kind",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no}
  - {id: b, text: B, kind: yes_no}
sections:
  - {id: method, members: [b]}
`,
			wantErr: "not section",
		},
		{
			name: "unknown kind fails json schema",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: slider}
`,
			wantErr: "schema validation failed",
		},
		{
			name: "unknown field fails json schema",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: A, kind: yes_no, colour: red}
`,
			wantErr: "schema validation failed",
		},
		{
			name: "numeric text fails json schema",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: method, text: 42, kind: yes_no}
`,
			wantErr: "schema validation failed",
		},
		{
			name: "key mismatch",
			alpha: `key: gamma
label: Gamma
questions:
  - {id: method, text: A, kind: yes_no}
`,
			wantErr: "does not match registry entry",
		},
		{
			name: "trigger question missing",
			alpha: `key: alpha
label: Alpha
questions:
  - {id: approach, text: A, kind: yes_no}
`,
			wantErr: "alpha has no question method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFS(testFS(tt.alpha))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr))
		})
	}
}

func TestLoadFSRegistryFailsJSONSchema(t *testing.T) {
	fsys := testFS("key: alpha\nlabel: Alpha\nquestions:\n  - {id: method, text: A, kind: yes_no}\n")
	fsys["registry.yaml"] = &fstest.MapFile{Data: []byte("version: 2.0.0\nquestionnaires: [alpha, 7]\n")}

	_, err := LoadFS(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, RegistryFile, loadErr.File)
}

func TestLoadFSMissingQuestionnaire(t *testing.T) {
	fsys := testFS("")
	delete(fsys, "questionnaires/alpha.yaml")

	_, err := LoadFS(fsys)
	require.Error(t, err)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "questionnaires/alpha.yaml", loadErr.File)
}

func TestLoadFSBadVersion(t *testing.T) {
	fsys := testFS("")
	fsys["registry.yaml"] = &fstest.MapFile{Data: []byte("version: banana\nquestionnaires: [beta]\n")}

	_, err := LoadFS(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(t.TempDir() + "/nope")
	assert.Error(t, err)
}
