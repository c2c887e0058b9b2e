package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/harrison/ptw/internal/answers"
)

// RegistryFile is the name of the registry document inside a schema directory.
const RegistryFile = "registry.yaml"

// QuestionnaireDir holds one <key>.yaml document per questionnaire.
const QuestionnaireDir = "questionnaires"

//go:embed registry.yaml questionnaires/*.yaml
var builtin embed.FS

//go:embed jsonschema/questionnaire.schema.json
var questionnaireSchemaSrc string

//go:embed jsonschema/registry.schema.json
var registrySchemaSrc string

const (
	questionnaireSchemaURL = "https://ptw.schemas.local/questionnaire.schema.json"
	registrySchemaURL      = "https://ptw.schemas.local/registry.schema.json"
)

// LoadError reports a schema document that failed to load.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CrossTrigger forces Target to be required when the Fragment of Question in
// the Source questionnaire contains Value.
type CrossTrigger struct {
	Source   string              `yaml:"source"`
	Question string              `yaml:"question"`
	Fragment answers.FragmentKey `yaml:"fragment"`
	Value    string              `yaml:"value"`
	Target   string              `yaml:"target"`
}

type registryDoc struct {
	Version        string         `yaml:"version"`
	Questionnaires []string       `yaml:"questionnaires"`
	SingleHazards  []HazardDef    `yaml:"single_hazards"`
	CrossTriggers  []CrossTrigger `yaml:"cross_triggers"`
}

// Registry is the loaded, validated set of questionnaires.
type Registry struct {
	version        *semver.Version
	order          []string
	questionnaires map[string]*Questionnaire
	hazards        []HazardDef
	triggers       []CrossTrigger
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry built from the embedded documents.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = LoadFS(builtin)
	})
	return defaultReg, defaultErr
}

// LoadDir loads a registry from a directory laid out like the embedded one.
func LoadDir(dir string) (*Registry, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("schema dir: %w", err)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS loads registry.yaml and every questionnaire it lists from fsys.
func LoadFS(fsys fs.FS) (*Registry, error) {
	validators, err := compileValidators()
	if err != nil {
		return nil, err
	}

	var doc registryDoc
	if err := decodeDocument(fsys, RegistryFile, validators.registry, &doc); err != nil {
		return nil, err
	}

	version, err := semver.NewVersion(doc.Version)
	if err != nil {
		return nil, &LoadError{File: RegistryFile, Err: fmt.Errorf("version %q: %w", doc.Version, err)}
	}

	reg := &Registry{
		version:        version,
		questionnaires: make(map[string]*Questionnaire, len(doc.Questionnaires)),
		hazards:        doc.SingleHazards,
	}

	for _, key := range doc.Questionnaires {
		if _, dup := reg.questionnaires[key]; dup {
			return nil, &LoadError{File: RegistryFile, Err: fmt.Errorf("questionnaire %s listed twice", key)}
		}
		file := path.Join(QuestionnaireDir, key+".yaml")
		q := &Questionnaire{}
		if err := decodeDocument(fsys, file, validators.questionnaire, q); err != nil {
			return nil, err
		}
		if q.Key != key {
			return nil, &LoadError{File: file, Err: fmt.Errorf("key %q does not match registry entry %q", q.Key, key)}
		}
		if err := checkQuestionnaire(q); err != nil {
			return nil, &LoadError{File: file, Err: err}
		}
		q.init()
		reg.order = append(reg.order, key)
		reg.questionnaires[key] = q
	}

	seen := make(map[string]bool, len(doc.SingleHazards))
	for _, h := range doc.SingleHazards {
		if seen[h.Key] {
			return nil, &LoadError{File: RegistryFile, Err: fmt.Errorf("single hazard %s listed twice", h.Key)}
		}
		seen[h.Key] = true
	}

	for _, t := range doc.CrossTriggers {
		if t.Fragment == "" {
			t.Fragment = answers.FragmentAnswer
		}
		if err := reg.checkTrigger(t); err != nil {
			return nil, &LoadError{File: RegistryFile, Err: err}
		}
		reg.triggers = append(reg.triggers, t)
	}

	return reg, nil
}

// NewQuestionnaire validates and indexes a questionnaire built in code.
func NewQuestionnaire(key, label string, questions []QuestionDef, sections []Section) (*Questionnaire, error) {
	q := &Questionnaire{
		Key:       key,
		Label:     label,
		Questions: append([]QuestionDef(nil), questions...),
		Sections:  append([]Section(nil), sections...),
	}
	if err := checkQuestionnaire(q); err != nil {
		return nil, err
	}
	q.init()
	return q, nil
}

func checkQuestionnaire(q *Questionnaire) error {
	if err := ValidateQuestions(q.Questions); err != nil {
		return err
	}
	if BuildDependencyGraph(q.Questions).HasCycle() {
		return fmt.Errorf("questionnaire %s: circular dependency detected", q.Key)
	}
	if err := ValidateOrder(q.Questions); err != nil {
		return err
	}
	return ValidateSections(q.Questions, q.Sections)
}

func (r *Registry) checkTrigger(t CrossTrigger) error {
	src, ok := r.questionnaires[t.Source]
	if !ok {
		return fmt.Errorf("cross trigger: unknown source questionnaire %s", t.Source)
	}
	if _, ok := src.Question(t.Question); !ok {
		return fmt.Errorf("cross trigger: %s has no question %s", t.Source, t.Question)
	}
	if _, ok := r.questionnaires[t.Target]; !ok {
		return fmt.Errorf("cross trigger: unknown target questionnaire %s", t.Target)
	}
	if t.Target == t.Source {
		return fmt.Errorf("cross trigger: %s.%s targets its own questionnaire", t.Source, t.Question)
	}
	return nil
}

type validatorSet struct {
	questionnaire *jsonschema.Schema
	registry      *jsonschema.Schema
}

var (
	validatorsOnce sync.Once
	validators     validatorSet
	validatorsErr  error
)

func compileValidators() (validatorSet, error) {
	validatorsOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(questionnaireSchemaURL, strings.NewReader(questionnaireSchemaSrc)); err != nil {
			validatorsErr = fmt.Errorf("questionnaire schema load failed: %w", err)
			return
		}
		if err := c.AddResource(registrySchemaURL, strings.NewReader(registrySchemaSrc)); err != nil {
			validatorsErr = fmt.Errorf("registry schema load failed: %w", err)
			return
		}
		validators.questionnaire, validatorsErr = c.Compile(questionnaireSchemaURL)
		if validatorsErr != nil {
			return
		}
		validators.registry, validatorsErr = c.Compile(registrySchemaURL)
	})
	return validators, validatorsErr
}

// decodeDocument validates a YAML document against sch and decodes it into out.
func decodeDocument(fsys fs.FS, file string, sch *jsonschema.Schema, out interface{}) error {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return &LoadError{File: file, Err: err}
	}

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return &LoadError{File: file, Err: fmt.Errorf("parse: %w", err)}
	}
	if generic == nil {
		return &LoadError{File: file, Err: errors.New("empty document")}
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return &LoadError{File: file, Err: fmt.Errorf("convert: %w", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()
	var inst interface{}
	if err := dec.Decode(&inst); err != nil {
		return &LoadError{File: file, Err: fmt.Errorf("convert: %w", err)}
	}
	if err := sch.Validate(inst); err != nil {
		return &LoadError{File: file, Err: fmt.Errorf("schema validation failed: %w", err)}
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return &LoadError{File: file, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// Version returns the registry's semantic version.
func (r *Registry) Version() *semver.Version { return r.version }

// Compatible reports whether a permit recorded against version can be
// evaluated by this registry: same major version and not newer.
func (r *Registry) Compatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return v.Major() == r.version.Major() && !v.GreaterThan(r.version)
}

// Keys returns questionnaire keys in declaration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Questionnaire returns the questionnaire for key.
func (r *Registry) Questionnaire(key string) (*Questionnaire, bool) {
	q, ok := r.questionnaires[key]
	return q, ok
}

// Questions returns the ordered questions for key, or nil for an unknown key.
func (r *Registry) Questions(key string) []QuestionDef {
	q, ok := r.questionnaires[key]
	if !ok {
		return nil
	}
	out := make([]QuestionDef, len(q.Questions))
	copy(out, q.Questions)
	return out
}

// SingleHazards returns the single-hazard catalogue in declaration order.
func (r *Registry) SingleHazards() []HazardDef {
	out := make([]HazardDef, len(r.hazards))
	copy(out, r.hazards)
	return out
}

// Hazard returns a catalogue entry by key.
func (r *Registry) Hazard(key string) (HazardDef, bool) {
	for _, h := range r.hazards {
		if h.Key == key {
			return h, true
		}
	}
	return HazardDef{}, false
}

// CrossTriggers returns the cross-trigger table.
func (r *Registry) CrossTriggers() []CrossTrigger {
	out := make([]CrossTrigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}
