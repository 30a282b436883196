package ir

import "fmt"

const (
	// IRVersion is the schema of calls, outcomes and notifications as they
	// are hashed and stored. Bump it when a recorded field changes meaning.
	IRVersion = "1"

	// EngineVersion names the build that recorded a call. Replay ignores it.
	EngineVersion = "0.1.0"
)

// CheckVersion reports whether a call recorded under schema v can be
// replayed by this build.
func CheckVersion(v string) error {
	if v != IRVersion {
		return fmt.Errorf("unsupported ir_version %q, this build reads %q", v, IRVersion)
	}
	return nil
}
