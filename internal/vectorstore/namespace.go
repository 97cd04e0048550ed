// Package vectorstore persists embedded chunks and retrieves them by vector
// similarity, with hard tenant and clone isolation.
//
// Isolation is structural, not advisory: every Index operation takes a
// Namespace, a validated (tenant, clone) pair, and backends scope every query
// and mutation to it. There is no API that reads or writes across namespaces.
package vectorstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidNamespace indicates a tenant or clone identifier that is not a
// valid UUID.
var ErrInvalidNamespace = errors.New("invalid namespace")

// Namespace is the isolation unit for all vector operations. It can only be
// built through NewNamespace, so holding one proves both identifiers parsed
// as UUIDs.
type Namespace struct {
	tenantID uuid.UUID
	cloneID  uuid.UUID
}

// NewNamespace validates and combines a tenant and clone identifier.
func NewNamespace(tenantID, cloneID string) (Namespace, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return Namespace{}, fmt.Errorf("%w: tenant id %q: %v", ErrInvalidNamespace, tenantID, err)
	}
	cid, err := uuid.Parse(cloneID)
	if err != nil {
		return Namespace{}, fmt.Errorf("%w: clone id %q: %v", ErrInvalidNamespace, cloneID, err)
	}
	return Namespace{tenantID: tid, cloneID: cid}, nil
}

// TenantID returns the canonical (dashed) tenant UUID string.
func (n Namespace) TenantID() string { return n.tenantID.String() }

// CloneID returns the canonical (dashed) clone UUID string.
func (n Namespace) CloneID() string { return n.cloneID.String() }

// IsZero reports whether the namespace was never constructed.
func (n Namespace) IsZero() bool {
	return n.tenantID == uuid.Nil && n.cloneID == uuid.Nil
}

// String returns the storage key for the namespace: both UUIDs hex-encoded
// with dashes stripped and concatenated, 64 characters total. The fixed width
// keeps it usable as a column value and a collection name alike.
func (n Namespace) String() string {
	return strings.ReplaceAll(n.tenantID.String(), "-", "") +
		strings.ReplaceAll(n.cloneID.String(), "-", "")
}
