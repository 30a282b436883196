package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/matchfund/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT.
func marshalObject(what string, obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Large integers go through
// json.Number inside IRObject.UnmarshalJSON, so nothing is rounded.
func unmarshalObject(what, data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return obj, nil
}

func formatBlock(b uint64) string {
	return strconv.FormatUint(b, 10)
}

func parseBlock(s string) (uint64, error) {
	b, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block %q: %w", s, err)
	}
	return b, nil
}
