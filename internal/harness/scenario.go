package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/matchfund/internal/config"
	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/round"
	"github.com/roach88/matchfund/internal/testutil"
)

// DefaultFlowToken is used when a scenario does not name one.
const DefaultFlowToken = testutil.DefaultFlowToken

// Scenario drives one deployment through a sequence of operations and
// asserts on the recorded trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FlowToken is the flow every step runs under.
	FlowToken string `yaml:"flow_token,omitempty"`

	// Config is a CUE deployment file, relative to the scenario file.
	// Exactly one of Config and Deployment must be set.
	Config string `yaml:"config,omitempty"`

	// Deployment is an inline deployment.
	Deployment *DeploymentSpec `yaml:"deployment,omitempty"`

	// Actors names addresses so steps can refer to them as "@name".
	// The deployment roles are registered automatically.
	Actors map[string]string `yaml:"actors,omitempty"`

	// Steps run in order after the deployment. May be empty.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	cfg *config.Config
}

// DeploymentSpec mirrors config.Deployment for inline use.
type DeploymentSpec struct {
	Core          string `yaml:"core"`
	Owner         string `yaml:"owner"`
	Coordinator   string `yaml:"coordinator,omitempty"`
	Witness       string `yaml:"witness,omitempty"`
	Token         string `yaml:"token"`
	RoundDuration uint64 `yaml:"round_duration"`
	StartBlock    uint64 `yaml:"start_block,omitempty"`
	MatchingFunds string `yaml:"matching_funds,omitempty"`
}

func (d DeploymentSpec) config() *config.Config {
	funds := d.MatchingFunds
	if funds == "" {
		funds = "0"
	}
	return &config.Config{
		Deployment: config.Deployment{
			Core:          d.Core,
			Owner:         d.Owner,
			Coordinator:   d.Coordinator,
			Witness:       d.Witness,
			Token:         d.Token,
			RoundDuration: d.RoundDuration,
			StartBlock:    d.StartBlock,
			MatchingFunds: funds,
			LogLevel:      "info",
		},
		Engine: config.Engine{MaxCallsPerFlow: engine.DefaultMaxCallsPerFlow},
	}
}

// Step is one operation, optionally preceded by moving the ledger height.
// A step with only Advance or AtBlock set just moves the height.
type Step struct {
	// Op is the engine operation name.
	Op string `yaml:"op,omitempty"`

	// Caller is an actor reference ("@owner") or a hex address.
	Caller string `yaml:"caller,omitempty"`

	// Args are the operation arguments. String values starting with "@"
	// are resolved as actors; integers are passed as decimal strings.
	Args map[string]any `yaml:"args,omitempty"`

	// Advance moves the height forward by this many blocks first.
	Advance uint64 `yaml:"advance,omitempty"`

	// AtBlock moves the height to this block first.
	AtBlock *uint64 `yaml:"at_block,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Case is the expected outcome case ("Success", "Unauthorized", ...).
	Case string `yaml:"case"`

	// Result is a subset of the expected result fields.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the notification kind (notification_contains, notification_count).
	Kind string `yaml:"kind,omitempty"`

	// Round restricts notification_contains to one round.
	Round string `yaml:"round,omitempty"`

	// Attrs is a subset of the expected notification attributes.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Kinds is the expected relative order (notification_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of notifications (notification_count).
	Count int `yaml:"count,omitempty"`

	// Expect is a subset of the final state view (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Balances maps holders to expected balances (final_state).
	Balances map[string]any `yaml:"balances,omitempty"`

	// Token selects the token for Balances. Defaults to the funding token.
	Token string `yaml:"token,omitempty"`
}

// Assertion type constants.
const (
	AssertNotificationContains = "notification_contains"
	AssertNotificationOrder    = "notification_order"
	AssertNotificationCount    = "notification_count"
	AssertFinalState           = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and a referenced config file is loaded relative to the scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario decodes a scenario. baseDir resolves a relative config path.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if scenario.Config != "" {
		path := scenario.Config
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
		scenario.cfg = cfg
	} else {
		cfg := scenario.Deployment.config()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scenario: deployment: %w", err)
		}
		scenario.cfg = cfg
	}

	if scenario.FlowToken == "" {
		scenario.FlowToken = DefaultFlowToken
	}
	return &scenario, nil
}

// DeploymentConfig returns the validated deployment the scenario runs against.
func (s *Scenario) DeploymentConfig() *config.Config {
	return s.cfg
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Config == "") == (s.Deployment == nil) {
		return fmt.Errorf("exactly one of config and deployment is required")
	}
	for name := range s.Actors {
		if name == "" || strings.HasPrefix(name, "@") {
			return fmt.Errorf("actors: invalid name %q", name)
		}
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			if step.Advance == 0 && step.AtBlock == nil {
				return fmt.Errorf("steps[%d]: op, advance or at_block is required", i)
			}
			if step.Caller != "" || step.Args != nil || step.Expect != nil {
				return fmt.Errorf("steps[%d]: caller, args and expect need an op", i)
			}
			continue
		}
		if step.Op == engine.OpDeploy {
			return fmt.Errorf("steps[%d]: deploy is performed by the harness", i)
		}
		if !engine.KnownOp(step.Op) {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Caller == "" {
			return fmt.Errorf("steps[%d]: caller is required", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("steps[%d]: expect.case is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertNotificationContains:
		if a.Kind == "" {
			return fmt.Errorf("%s requires kind", a.Type)
		}
		return validKind(a.Kind)
	case AssertNotificationCount:
		if a.Kind == "" {
			return fmt.Errorf("%s requires kind", a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
		return validKind(a.Kind)
	case AssertNotificationOrder:
		if len(a.Kinds) < 2 {
			return fmt.Errorf("%s requires at least two kinds", a.Type)
		}
		for _, k := range a.Kinds {
			if err := validKind(k); err != nil {
				return err
			}
		}
		return nil
	case AssertFinalState:
		if len(a.Expect) == 0 && len(a.Balances) == 0 {
			return fmt.Errorf("%s requires expect or balances", a.Type)
		}
		for key := range a.Expect {
			if _, ok := stateFields[key]; !ok {
				return fmt.Errorf("%s: unknown state field %q", a.Type, key)
			}
		}
		return nil
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func validKind(k string) error {
	if !round.ValidKind(round.Kind(k)) {
		return fmt.Errorf("unknown notification kind %q", k)
	}
	return nil
}
