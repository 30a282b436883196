// Package config loads deployment configuration.
//
// A deployment file is CUE, unified with an embedded schema that fixes the
// shape (hex addresses, unsigned integers, defaults). Semantic checks the
// schema cannot express run afterwards and are reported together.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
)

//go:embed schema.cue
var schemaCUE []byte

// Deployment describes the core to deploy.
type Deployment struct {
	Core          string `json:"core"`
	Owner         string `json:"owner"`
	Coordinator   string `json:"coordinator,omitempty"`
	Witness       string `json:"witness,omitempty"`
	Token         string `json:"token"`
	RoundDuration uint64 `json:"round_duration"`
	StartBlock    uint64 `json:"start_block"`
	MatchingFunds string `json:"matching_funds"`
	LogLevel      string `json:"log_level"`
}

// Engine tunes the engine.
type Engine struct {
	MaxCallsPerFlow int `json:"max_calls_per_flow"`
}

// Config is a validated deployment file.
type Config struct {
	Deployment Deployment `json:"deployment"`
	Engine     Engine     `json:"engine"`
}

// Error is a configuration problem, with its CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates the CUE file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return Decode(path, data)
}

// Decode validates CUE source. name is used in error positions.
// The returned error is a *multierror.Error listing every problem found.
func Decode(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(name))
	if err := file.Err(); err != nil {
		return nil, cueErrors(err)
	}

	v := schema.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueErrors(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, cueErrors(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// cueErrors flattens a CUE error list into a multierror.
func cueErrors(err error) error {
	var result *multierror.Error
	for _, e := range cueerrors.Errors(err) {
		ce := &Error{Field: "cue", Message: e.Error()}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ce.Pos = pos[0]
		}
		if path := e.Path(); len(path) > 0 {
			ce.Field = strings.Join(path, ".")
		}
		result = multierror.Append(result, ce)
	}
	if result == nil {
		return err
	}
	return result
}

// Validate checks what the schema cannot: non-zero identities, distinct
// core, amounts within 256 bits. All problems are returned together.
func (c *Config) Validate() error {
	var result *multierror.Error
	d := c.Deployment

	required := []struct {
		field, value string
	}{
		{"deployment.core", d.Core},
		{"deployment.owner", d.Owner},
		{"deployment.token", d.Token},
	}
	parsed := make(map[string]chain.Address, len(required))
	for _, r := range required {
		addr, err := chain.ParseAddress(r.value)
		switch {
		case err != nil:
			result = multierror.Append(result, &Error{Field: r.field, Message: err.Error()})
		case chain.IsZero(addr):
			result = multierror.Append(result, &Error{Field: r.field, Message: "must not be the zero address"})
		default:
			parsed[r.field] = addr
		}
	}
	for _, o := range []struct{ field, value string }{
		{"deployment.coordinator", d.Coordinator},
		{"deployment.witness", d.Witness},
	} {
		if o.value == "" {
			continue
		}
		if _, err := chain.ParseAddress(o.value); err != nil {
			result = multierror.Append(result, &Error{Field: o.field, Message: err.Error()})
		}
	}

	if core, ok := parsed["deployment.core"]; ok && (core == parsed["deployment.owner"] || core == parsed["deployment.token"]) {
		result = multierror.Append(result, &Error{Field: "deployment.core", Message: "must differ from owner and token"})
	}
	if _, err := uint256.FromDecimal(d.MatchingFunds); err != nil && d.MatchingFunds != "" {
		result = multierror.Append(result, &Error{Field: "deployment.matching_funds", Message: err.Error()})
	}
	if _, ok := levels[d.LogLevel]; !ok && d.LogLevel != "" {
		result = multierror.Append(result, &Error{Field: "deployment.log_level", Message: fmt.Sprintf("unknown level %q", d.LogLevel)})
	}
	if c.Engine.MaxCallsPerFlow < 0 {
		result = multierror.Append(result, &Error{Field: "engine.max_calls_per_flow", Message: "must not be negative"})
	}
	return result.ErrorOrNil()
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the configured log level, info by default.
func (d Deployment) Level() slog.Level {
	if l, ok := levels[d.LogLevel]; ok {
		return l
	}
	return slog.LevelInfo
}

// Funds returns the initial matching funds. Zero if unset.
func (d Deployment) Funds() *uint256.Int {
	if d.MatchingFunds == "" {
		return new(uint256.Int)
	}
	v, err := uint256.FromDecimal(d.MatchingFunds)
	if err != nil {
		return new(uint256.Int)
	}
	return v
}

// DeployArgs returns the arguments of the engine's deploy operation.
// Vacant roles are omitted.
func (d Deployment) DeployArgs() ir.IRObject {
	args := ir.IRObject{
		"core":     ir.IRString(d.Core),
		"owner":    ir.IRString(d.Owner),
		"token":    ir.IRString(d.Token),
		"duration": ir.IRString(strconv.FormatUint(d.RoundDuration, 10)),
	}
	if d.Coordinator != "" {
		args["coordinator"] = ir.IRString(d.Coordinator)
	}
	if d.Witness != "" {
		args["witness"] = ir.IRString(d.Witness)
	}
	return args
}

// OwnerAddress returns the parsed owner. Only valid after Validate.
func (d Deployment) OwnerAddress() chain.Address {
	addr, _ := chain.ParseAddress(d.Owner)
	return addr
}
