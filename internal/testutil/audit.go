package testutil

import (
	"path/filepath"
	"testing"

	"github.com/dativo-io/nexus/internal/audit"
)

// NewTestAuditStore creates an audit store in a temp dir and registers
// t.Cleanup to close it.
func NewTestAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	store, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"), TestSigningKey)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
