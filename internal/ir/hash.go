package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainCall         = "matchfund/call/v1"
	DomainOutcome      = "matchfund/outcome/v1"
	DomainNotification = "matchfund/notification/v1"
	DomainState        = "matchfund/state/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func hashObject(domain string, obj IRObject) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, canonical), nil
}

func u64(v uint64) IRString {
	return IRString(strconv.FormatUint(v, 10))
}

// CallID identifies a call by what was asked, by whom, and when.
// Engine and IR versions are recorded on the call but not hashed, so a replay
// under a newer binary reproduces the same IDs.
func CallID(flowToken, op, caller string, args IRObject, block uint64, seq int64) (string, error) {
	if args == nil {
		args = IRObject{}
	}
	id, err := hashObject(DomainCall, IRObject{
		"flow_token": IRString(flowToken),
		"op":         IRString(op),
		"caller":     IRString(caller),
		"args":       args,
		"block":      u64(block),
		"seq":        IRInt(seq),
	})
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}
	return id, nil
}

// OutcomeID identifies an outcome. The human-readable message is excluded.
func OutcomeID(callID, outcomeCase string, code uint32, result IRObject, seq int64) (string, error) {
	if result == nil {
		result = IRObject{}
	}
	id, err := hashObject(DomainOutcome, IRObject{
		"call_id": IRString(callID),
		"case":    IRString(outcomeCase),
		"code":    IRInt(code),
		"result":  result,
		"seq":     IRInt(seq),
	})
	if err != nil {
		return "", fmt.Errorf("OutcomeID: failed to marshal: %w", err)
	}
	return id, nil
}

// NotificationID identifies one emitted notification.
func NotificationID(callID string, index int, kind, round string, block uint64, attrs IRObject, seq int64) (string, error) {
	if attrs == nil {
		attrs = IRObject{}
	}
	id, err := hashObject(DomainNotification, IRObject{
		"call_id": IRString(callID),
		"index":   IRInt(index),
		"kind":    IRString(kind),
		"round":   IRString(round),
		"block":   u64(block),
		"attrs":   attrs,
		"seq":     IRInt(seq),
	})
	if err != nil {
		return "", fmt.Errorf("NotificationID: failed to marshal: %w", err)
	}
	return id, nil
}

// StateHash fingerprints a canonical state encoding for snapshots.
func StateHash(canonical []byte) string {
	return hashWithDomain(DomainState, canonical)
}

// MustCallID is CallID that panics. Tests only.
func MustCallID(flowToken, op, caller string, args IRObject, block uint64, seq int64) string {
	id, err := CallID(flowToken, op, caller, args, block, seq)
	if err != nil {
		panic(err)
	}
	return id
}
