// Package identity derives the execution fingerprint of a hook event.
//
// A fingerprint names "this logical event": two processes launched for the
// same session, event kind and tool compute the same value no matter when
// they run or which pid they have.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ppiankov/hookguard/internal/envelope"
)

// Size is the fingerprint length in hex characters (64 bits).
const Size = 16

// Fingerprint is a short deterministic hash of session, kind and tool.
type Fingerprint string

// Compute returns the fingerprint for the given event coordinates.
// The input is "<session>:<kind>:<tool>"; the tool separator is always
// present, so history files written by earlier versions stay comparable.
func Compute(sessionID string, kind envelope.EventKind, tool string) Fingerprint {
	sum := sha256.Sum256([]byte(sessionID + ":" + string(kind) + ":" + tool))
	return Fingerprint(hex.EncodeToString(sum[:])[:Size])
}

// Of returns the fingerprint of an envelope.
func Of(env *envelope.Envelope) Fingerprint {
	if env == nil {
		return Compute("", "", "")
	}
	return Compute(env.SessionID, env.Kind, env.ToolName)
}

// Parse validates s as a fingerprint.
func Parse(s string) (Fingerprint, error) {
	if len(s) != Size {
		return "", fmt.Errorf("fingerprint must be %d hex characters, got %d", Size, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("fingerprint contains invalid character %q", c)
		}
	}
	return Fingerprint(s), nil
}

func (f Fingerprint) String() string { return string(f) }
