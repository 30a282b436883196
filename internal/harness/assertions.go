package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/matchfund/internal/engine"
	"github.com/roach88/matchfund/internal/ir"
)

// stateFields are the keys of the final state view.
var stateFields = map[string]struct{}{
	"owner":                    {},
	"coordinator":              {},
	"witness":                  {},
	"token":                    {},
	"duration":                 {},
	"deadline":                 {},
	"current":                  {},
	"previous":                 {},
	"interrupted":              {},
	"computation_identifier":   {},
	"new_computation_attested": {},
	"previous_round_valid":     {},
	"coordinator_just_changed": {},
	"rounds":                   {},
	"matching_funds":           {},
}

// stateView flattens the core state for final_state assertions.
func stateView(e *engine.Engine) (map[string]any, error) {
	c := e.Controller()
	if c == nil {
		return map[string]any{}, nil
	}
	st := c.Snapshot()
	funds, err := c.MatchingFunds()
	if err != nil {
		return nil, fmt.Errorf("failed to read matching funds: %w", err)
	}
	return map[string]any{
		"owner":                    st.Roles.Owner.Hex(),
		"coordinator":              st.Roles.Coordinator.Hex(),
		"witness":                  st.Roles.Witness.Hex(),
		"token":                    st.Token.Hex(),
		"duration":                 st.Duration,
		"deadline":                 st.Deadline,
		"current":                  st.Current.Hex(),
		"previous":                 st.Previous.Hex(),
		"interrupted":              st.Interrupted.Hex(),
		"computation_identifier":   st.ComputationIdentifier,
		"new_computation_attested": st.Flags.NewComputationAttested,
		"previous_round_valid":     st.Flags.PreviousRoundValid,
		"coordinator_just_changed": st.Flags.CoordinatorJustChanged,
		"rounds":                   len(st.Rounds),
		"matching_funds":           funds.Dec(),
	}, nil
}

func evaluateAssertion(e *engine.Engine, people actors, a Assertion, result *Result) error {
	switch a.Type {
	case AssertNotificationContains:
		return assertNotificationContains(people, a, result.Notifications())
	case AssertNotificationOrder:
		return assertNotificationOrder(a.Kinds, result.Notifications())
	case AssertNotificationCount:
		return assertNotificationCount(a.Kind, a.Count, result.Notifications())
	case AssertFinalState:
		return assertFinalState(e, people, a, result.State)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertNotificationContains requires at least one notification of the kind
// whose round and attributes match.
func assertNotificationContains(people actors, a Assertion, notes []TraceEvent) error {
	for _, n := range notes {
		if n.Kind != a.Kind {
			continue
		}
		if a.Round != "" && !people.match(a.Round, ir.IRString(n.Round)) {
			continue
		}
		if attrsMatch(people, a.Attrs, n.Attrs) {
			return nil
		}
	}
	desc := a.Kind
	if a.Round != "" {
		desc += " for round " + a.Round
	}
	if len(a.Attrs) > 0 {
		desc += fmt.Sprintf(" with attrs %v", a.Attrs)
	}
	return fmt.Errorf("no %s notification", desc)
}

func attrsMatch(people actors, want map[string]any, got ir.IRObject) bool {
	for k, w := range want {
		g, ok := got[k]
		if !ok || !people.match(w, g) {
			return false
		}
	}
	return true
}

// assertNotificationOrder requires kinds to appear in this relative order.
// Other notifications may appear in between.
func assertNotificationOrder(kinds []string, notes []TraceEvent) error {
	next := 0
	for _, n := range notes {
		if next < len(kinds) && n.Kind == kinds[next] {
			next++
		}
	}
	if next < len(kinds) {
		return fmt.Errorf("expected order %s, %s not found after %s",
			strings.Join(kinds, " -> "), kinds[next], strings.Join(kinds[:next], " -> "))
	}
	return nil
}

func assertNotificationCount(kind string, want int, notes []TraceEvent) error {
	got := 0
	for _, n := range notes {
		if n.Kind == kind {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("expected %d %s notifications, got %d", want, kind, got)
	}
	return nil
}

// assertFinalState compares the state view and token balances.
func assertFinalState(e *engine.Engine, people actors, a Assertion, state map[string]any) error {
	var mismatches []string
	for _, key := range sortedKeys(a.Expect) {
		got, ok := state[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no such field", key))
			continue
		}
		gotValue, err := ir.FromGo(got)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if !people.match(a.Expect[key], gotValue) {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %v, got %v", key, a.Expect[key], got))
		}
	}

	if len(a.Balances) > 0 {
		token := a.Token
		if token == "" {
			token = fmt.Sprint(state["token"])
		}
		tokenAddr, err := people.address(token)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		tok, err := e.Ledger().Token(tokenAddr)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		for _, holder := range sortedKeys(a.Balances) {
			addr, err := people.address(holder)
			if err != nil {
				return fmt.Errorf("balances: %w", err)
			}
			got := tok.BalanceOf(addr).Dec()
			if !people.match(a.Balances[holder], ir.IRString(got)) {
				mismatches = append(mismatches, fmt.Sprintf("balance of %s: expected %v, got %s",
					holder, a.Balances[holder], got))
			}
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%s", strings.Join(mismatches, "; "))
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
