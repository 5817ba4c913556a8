// Package clienv implements the CLI's single JSON envelope contract: every
// command prints exactly one object on stdout, grounded on
// internal/api/api.go's writeJSON/writeError helpers generalized from HTTP
// responses to stdout.
package clienv

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Envelope is the exact shape every aipl subcommand prints on stdout.
type Envelope struct {
	OK      bool   `json:"ok"`
	TS      int64  `json:"ts"`
	TraceID string `json:"trace_id"`
	Data    any    `json:"data"`
	Error   *string `json:"error"`
}

// NewTraceID mints a trc_<12hex> identifier, grounded on
// internal/graph/dag.go's randomID (crypto/rand over math/big, hex-formatted
// with a prefix).
func NewTraceID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(0x1000000000000))
	if err != nil {
		return "", fmt.Errorf("clienv: generate trace id: %w", err)
	}
	return fmt.Sprintf("trc_%012x", n), nil
}

// Emit writes the envelope for a command's outcome to stdout and returns an
// error only if the envelope itself could not be constructed or encoded;
// per spec, a command's own failure is carried inside the envelope (ok=false,
// error=<message>), not as a non-zero process exit.
func Emit(data any, cmdErr error) error {
	traceID, err := NewTraceID()
	if err != nil {
		return err
	}
	env := Envelope{
		OK:      cmdErr == nil,
		TS:      time.Now().Unix(),
		TraceID: traceID,
		Data:    data,
	}
	if cmdErr != nil {
		msg := cmdErr.Error()
		env.Error = &msg
	}
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(env)
}
