package model

import (
	"errors"
	"fmt"
)

// ErrInvalidSuiteDefinition is returned when a suite definition fails
// validation at registration time. Invalid suites are never retried.
var ErrInvalidSuiteDefinition = errors.New("invalid suite definition")

// ScenarioInputType identifies the kind of input a scenario feeds into the
// pipeline.
type ScenarioInputType string

const (
	InputText  ScenarioInputType = "text"
	InputAudio ScenarioInputType = "audio"
)

// TestScenario is a named, repeatable unit of work: an input, an expected
// response shape and a repetition count. Scenarios are read-only templates
// shared across configurations.
type TestScenario struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	InputType        ScenarioInputType `json:"inputType" yaml:"input_type"`
	InputText        string            `json:"inputText,omitempty" yaml:"input_text,omitempty"`
	AudioFile        string            `json:"audioFile,omitempty" yaml:"audio_file,omitempty"`
	ExpectedResponse string            `json:"expectedResponse,omitempty" yaml:"expected_response,omitempty"`
	Repetitions      int               `json:"repetitions" yaml:"repetitions"`
}

// ParameterSpace is the cross-product specification the orchestrator expands
// into concrete test configurations.
type ParameterSpace struct {
	STTConfigs      []ProviderConfig `json:"sttConfigs" yaml:"stt_configs"`
	LLMConfigs      []ProviderConfig `json:"llmConfigs" yaml:"llm_configs"`
	TTSConfigs      []ProviderConfig `json:"ttsConfigs" yaml:"tts_configs"`
	NetworkProfiles []NetworkProfile `json:"networkProfiles,omitempty" yaml:"network_profiles,omitempty"`
}

// Size returns the number of configurations the space expands to.
func (s ParameterSpace) Size() int {
	n := len(s.STTConfigs) * len(s.LLMConfigs) * len(s.TTSConfigs)
	if len(s.NetworkProfiles) > 0 {
		n *= len(s.NetworkProfiles)
	}
	return n
}

// Expand produces the concrete configurations in a deterministic,
// order-preserving sequence: STT outermost, then LLM, TTS and network profile.
// Repeated expansion of the same space yields an identical ordering, which
// keeps job sequences comparable across runs.
func (s ParameterSpace) Expand() []TestConfiguration {
	networks := s.NetworkProfiles
	if len(networks) == 0 {
		networks = []NetworkProfile{NetworkUnconstrained}
	}
	configs := make([]TestConfiguration, 0, s.Size())
	for _, stt := range s.STTConfigs {
		for _, llm := range s.LLMConfigs {
			for _, tts := range s.TTSConfigs {
				for _, net := range networks {
					configs = append(configs, TestConfiguration{
						STT: stt, LLM: llm, TTS: tts, Network: net,
					})
				}
			}
		}
	}
	return configs
}

// TestSuiteDefinition is a named collection of scenarios plus a parameter
// space. Suites are registered once and referenced by ID when starting runs.
type TestSuiteDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Scenarios   []TestScenario `json:"scenarios" yaml:"scenarios"`
	Space       ParameterSpace `json:"parameterSpace" yaml:"parameter_space"`
}

// Validate checks the structural requirements for registration: a suite ID,
// a non-empty scenario list with unique scenario IDs and positive repetition
// counts, and non-empty provider lists for every stage.
func (d *TestSuiteDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: suite id is required", ErrInvalidSuiteDefinition)
	}
	if len(d.Scenarios) == 0 {
		return fmt.Errorf("%w: suite %q has no scenarios", ErrInvalidSuiteDefinition, d.ID)
	}
	seen := make(map[string]bool, len(d.Scenarios))
	for _, sc := range d.Scenarios {
		if sc.ID == "" {
			return fmt.Errorf("%w: scenario in suite %q has no id", ErrInvalidSuiteDefinition, d.ID)
		}
		if seen[sc.ID] {
			return fmt.Errorf("%w: duplicate scenario id %q", ErrInvalidSuiteDefinition, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Repetitions <= 0 {
			return fmt.Errorf("%w: scenario %q has repetitions %d", ErrInvalidSuiteDefinition, sc.ID, sc.Repetitions)
		}
	}
	if len(d.Space.STTConfigs) == 0 {
		return fmt.Errorf("%w: suite %q has no STT configs", ErrInvalidSuiteDefinition, d.ID)
	}
	if len(d.Space.LLMConfigs) == 0 {
		return fmt.Errorf("%w: suite %q has no LLM configs", ErrInvalidSuiteDefinition, d.ID)
	}
	if len(d.Space.TTSConfigs) == 0 {
		return fmt.Errorf("%w: suite %q has no TTS configs", ErrInvalidSuiteDefinition, d.ID)
	}
	return nil
}

// TotalTestCount returns the number of jobs the suite expands to:
// sum over scenarios of repetitions, times the parameter space size.
func (d *TestSuiteDefinition) TotalTestCount() int {
	reps := 0
	for _, sc := range d.Scenarios {
		reps += sc.Repetitions
	}
	return reps * d.Space.Size()
}

// ExpandJobs expands the suite into the ordered job list: configurations in
// parameter-space order, scenarios in declaration order, repetitions in index
// order. Expansion is deterministic for identical definitions.
func (d *TestSuiteDefinition) ExpandJobs() []TestJob {
	jobs := make([]TestJob, 0, d.TotalTestCount())
	for _, cfg := range d.Space.Expand() {
		configID := cfg.ID()
		for _, sc := range d.Scenarios {
			for rep := 0; rep < sc.Repetitions; rep++ {
				jobs = append(jobs, TestJob{
					ConfigID:   configID,
					Config:     cfg,
					Scenario:   sc,
					Repetition: rep,
				})
			}
		}
	}
	return jobs
}
