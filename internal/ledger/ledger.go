// Package ledger is the outbound interface to the tamper-evident audit
// ledger. The ledger only ever receives an opaque digest of the serialized
// outer vault envelope plus an operation tag; transport and consensus are
// someone else's problem.
package ledger

import (
	"context"
	"encoding/hex"

	"github.com/pinvault/pinvault/internal/logging"
)

// Operation tags recorded alongside envelope digests.
const (
	OpCreate  = "vault.create"
	OpUpdate  = "vault.update"
	OpBackup  = "vault.backup"
	OpRestore = "vault.restore"
)

// Ledger receives (digest, operation) pairs. Implementations must not be
// handed anything but the digest.
type Ledger interface {
	Record(ctx context.Context, digest []byte, operation string) error
}

// SlogLedger writes ledger records to the structured log. It stands in for
// a real ledger client and doubles as a local audit trail.
type SlogLedger struct {
	logger logging.Logger
}

func NewSlogLedger(logger logging.Logger) *SlogLedger {
	return &SlogLedger{logger: logger}
}

func (l *SlogLedger) Record(ctx context.Context, digest []byte, operation string) error {
	l.logger.Info(ctx, "ledger record", "op", operation, "digest", hex.EncodeToString(digest))
	return nil
}

// Nop discards records. Used where auditing is switched off.
type Nop struct{}

func (Nop) Record(ctx context.Context, digest []byte, operation string) error { return nil }
