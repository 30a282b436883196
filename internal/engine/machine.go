package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/matchfund/internal/chain"
	"github.com/roach88/matchfund/internal/ir"
	"github.com/roach88/matchfund/internal/round"
	"github.com/roach88/matchfund/internal/store"
)

// FactoryFunc returns the round factory for a core that has already
// deployed n rounds. The engine calls it at deploy, on resume and after a
// rollback, so the factory must be a pure function of n.
type FactoryFunc func(n uint64) chain.RoundFactory

// CreateFactoryFunc derives round handles the way CREATE does,
// keccak(rlp(core, nonce)), with the nonce equal to the rounds deployed.
func CreateFactoryFunc(n uint64) chain.RoundFactory {
	return chain.NewCreateFactory(n)
}

// machine is the deterministic part of the engine: the controller, the
// token ledger and the ledger height. Replay drives a fresh machine with
// the recorded calls.
type machine struct {
	ledger  *chain.MemoryLedger
	height  *chain.ManualClock
	factory FactoryFunc
	logger  *slog.Logger

	core chain.Address
	ctrl *round.Controller // nil until deployed
}

func newMachine(height uint64, factory FactoryFunc, logger *slog.Logger) *machine {
	return &machine{
		ledger:  chain.NewMemoryLedger(),
		height:  chain.NewManualClock(height),
		factory: factory,
		logger:  logger,
	}
}

func (m *machine) deployed() bool {
	return m.ctrl != nil
}

func (m *machine) deps(rounds int) round.Deps {
	return round.Deps{
		Clock:   m.height,
		Factory: m.factory(uint64(rounds)),
		Tokens:  m.ledger,
	}
}

// snapshotDoc is the persisted form of the controller.
type snapshotDoc struct {
	Core  chain.Address `json:"core"`
	State round.State   `json:"state"`
}

// snapshot encodes the current state. Only valid once deployed.
func (m *machine) snapshot(seq int64, callID string) (store.Snapshot, error) {
	state, err := json.Marshal(snapshotDoc{Core: m.core, State: m.ctrl.Snapshot()})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode state: %w", err)
	}
	balances, err := json.Marshal(m.ledger.Export())
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode balances: %w", err)
	}
	return store.Snapshot{
		Seq:      seq,
		CallID:   callID,
		State:    state,
		Balances: balances,
		Hash:     snapshotHash(state, balances),
	}, nil
}

func snapshotHash(state, balances []byte) string {
	data := make([]byte, 0, len(state)+len(balances)+1)
	data = append(data, state...)
	data = append(data, 0x00)
	data = append(data, balances...)
	return ir.StateHash(data)
}

// restore loads a persisted snapshot.
func (m *machine) restore(snap store.Snapshot) error {
	var doc snapshotDoc
	if err := json.Unmarshal(snap.State, &doc); err != nil {
		return fmt.Errorf("decode snapshot %d state: %w", snap.Seq, err)
	}
	var balances chain.Balances
	if err := json.Unmarshal(snap.Balances, &balances); err != nil {
		return fmt.Errorf("decode snapshot %d balances: %w", snap.Seq, err)
	}
	if got := snapshotHash(snap.State, snap.Balances); got != snap.Hash {
		return fmt.Errorf("snapshot %d hash mismatch: stored %s, computed %s", snap.Seq, snap.Hash, got)
	}
	return m.load(doc.Core, &doc.State, balances)
}

// checkpoint is an in-memory copy of the machine taken before a call.
type checkpoint struct {
	core     chain.Address
	state    *round.State // nil when not deployed
	balances chain.Balances
}

func (m *machine) capture() checkpoint {
	cp := checkpoint{core: m.core, balances: m.ledger.Export()}
	if m.ctrl != nil {
		st := m.ctrl.Snapshot()
		cp.state = &st
	}
	return cp
}

// rollback returns the machine to cp. The factory is rebuilt from the
// restored round count so the next deployment reuses the discarded handle.
func (m *machine) rollback(cp checkpoint) error {
	return m.load(cp.core, cp.state, cp.balances)
}

func (m *machine) load(core chain.Address, st *round.State, balances chain.Balances) error {
	if err := m.ledger.Import(balances); err != nil {
		return err
	}
	if st == nil {
		m.core = chain.ZeroAddress
		m.ctrl = nil
		return nil
	}
	ctrl, err := round.Restore(core, *st, m.deps(len(st.Rounds)), round.WithLogger(m.logger))
	if err != nil {
		return err
	}
	m.core = core
	m.ctrl = ctrl
	return nil
}

// run dispatches one call. A non-nil error is a rejected operation.
func (m *machine) run(op opSpec, caller chain.Address, args ir.IRObject) (ir.IRObject, []round.Notification, error) {
	if err := op.checkArgs(args); err != nil {
		return nil, nil, err
	}
	return op.run(m, caller, args)
}

// record turns the output of run into the rows AppendCall writes.
// Notifications take the seqs after the call; the outcome takes the next one.
func record(call ir.Call, result ir.IRObject, notes []round.Notification, opErr error) (store.Record, error) {
	recs := make([]ir.NotificationRecord, len(notes))
	for i, n := range notes {
		attrs := n.Attrs
		if attrs == nil {
			attrs = ir.IRObject{}
		}
		seq := call.Seq + 1 + int64(i)
		id, err := ir.NotificationID(call.ID, i, string(n.Kind), n.Round.Hex(), n.Block, attrs, seq)
		if err != nil {
			return store.Record{}, err
		}
		recs[i] = ir.NotificationRecord{
			ID:     id,
			CallID: call.ID,
			Index:  i,
			Kind:   string(n.Kind),
			Round:  n.Round.Hex(),
			Block:  n.Block,
			Attrs:  attrs,
			Seq:    seq,
		}
	}

	out := ir.Outcome{
		CallID: call.ID,
		Case:   ir.CaseSuccess,
		Result: result,
		Seq:    call.Seq + int64(len(notes)) + 1,
	}
	if opErr != nil {
		out.Case = round.Reason(opErr)
		out.Code = round.Code(opErr)
		out.Message = opErr.Error()
		out.Result = ir.IRObject{}
	}
	if out.Result == nil {
		out.Result = ir.IRObject{}
	}
	id, err := ir.OutcomeID(out.CallID, out.Case, out.Code, out.Result, out.Seq)
	if err != nil {
		return store.Record{}, err
	}
	out.ID = id

	return store.Record{Call: call, Outcome: out, Notifications: recs}, nil
}
