package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caller = "0x00000000000000000000000000000000000000A1"

func TestCallIDDeterminism(t *testing.T) {
	args := IRObject{"duration": IRString("100")}
	id1, err := CallID("flow-1", "set-duration", caller, args, 5, 1)
	require.NoError(t, err)
	id2, err := CallID("flow-1", "set-duration", caller, IRObject{"duration": IRString("100")}, 5, 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
	_, err = hex.DecodeString(id1)
	assert.NoError(t, err)
}

func TestCallIDChangesWithInput(t *testing.T) {
	base := MustCallID("flow-1", "end-round", caller, nil, 5, 1)
	variants := []string{
		MustCallID("flow-2", "end-round", caller, nil, 5, 1),
		MustCallID("flow-1", "attest", caller, nil, 5, 1),
		MustCallID("flow-1", "end-round", "0x00000000000000000000000000000000000000A2", nil, 5, 1),
		MustCallID("flow-1", "end-round", caller, IRObject{"x": IRInt(1)}, 5, 1),
		MustCallID("flow-1", "end-round", caller, nil, 6, 1),
		MustCallID("flow-1", "end-round", caller, nil, 5, 2),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d", i)
	}
}

func TestCallIDNilArgsEqualsEmpty(t *testing.T) {
	assert.Equal(t,
		MustCallID("f", "end-round", caller, nil, 0, 1),
		MustCallID("f", "end-round", caller, IRObject{}, 0, 1))
}

func TestOutcomeID(t *testing.T) {
	callID := MustCallID("f", "transfer", caller, nil, 0, 1)
	ok, err := OutcomeID(callID, "Success", 0, IRObject{"finalized": IRBool(true)}, 2)
	require.NoError(t, err)
	rejected, err := OutcomeID(callID, "InvalidTransferConditions", 5, nil, 2)
	require.NoError(t, err)
	again, err := OutcomeID(callID, "Success", 0, IRObject{"finalized": IRBool(true)}, 2)
	require.NoError(t, err)

	assert.Equal(t, ok, again)
	assert.NotEqual(t, ok, rejected)
}

func TestNotificationID(t *testing.T) {
	callID := MustCallID("f", "end-round", caller, nil, 0, 1)
	attrs := IRObject{"deadline": IRString("100")}
	first, err := NotificationID(callID, 0, "RoundStarted", "0x01", 0, attrs, 2)
	require.NoError(t, err)
	second, err := NotificationID(callID, 1, "RoundStarted", "0x01", 0, attrs, 3)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	data := []byte(`{}`)
	hashes := map[string]bool{}
	for _, d := range []string{DomainCall, DomainOutcome, DomainNotification, DomainState} {
		hashes[hashWithDomain(d, data)] = true
	}
	assert.Len(t, hashes, 4)
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + "c" and "a" + "bc" must not collide.
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestIDErrorHandling(t *testing.T) {
	_, err := CallID("f", "op", caller, IRObject{"bad": IRNull{}}, 0, 1)
	assert.Error(t, err)
	_, err = OutcomeID("c", "Success", 0, IRObject{"bad": IRNull{}}, 1)
	assert.Error(t, err)
	_, err = NotificationID("c", 0, "k", "r", 0, IRObject{"bad": IRNull{}}, 1)
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustCallID("f", "op", caller, IRObject{"bad": IRNull{}}, 0, 1)
	})
}

func TestStateHash(t *testing.T) {
	a := StateHash([]byte(`{"current":"0x01"}`))
	b := StateHash([]byte(`{"current":"0x02"}`))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, StateHash([]byte(`{"current":"0x01"}`)))
}

func TestOutcomeSucceeded(t *testing.T) {
	assert.True(t, Outcome{Case: CaseSuccess}.Succeeded())
	assert.False(t, Outcome{Case: "Unauthorized"}.Succeeded())
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(IRVersion))

	err := CheckVersion("0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported ir_version "0"`)
}
