// Package access implements the Access Policy Hook: a pluggable check of
// whether a caller identity may read a given run, and a query rewrite step
// letting a policy narrow a Catalog search to only the runs that caller is
// permitted to see.
package access

import (
	"github.com/bluesky/databroker/docmodel"
)

// Admin is the sentinel identity that bypasses every policy check, for
// service-to-service and operator access.
const Admin = "__admin__"

// Policy decides what one caller identity may see.
type Policy interface {
	// CheckCompatibility reports whether identity may read the given run.
	CheckCompatibility(identity string, run *docmodel.RunStart) error

	// ModifyQueries returns additional Mango selector conjuncts to
	// restrict a search to the runs identity may see. Returning nil
	// imposes no additional restriction.
	ModifyQueries(identity string) []map[string]interface{}
}

// AllowAll is the zero-configuration Policy: every caller may see every
// run. It is the default when no Policy is configured, matching the
// reference engine's behavior of only enforcing access control when a
// policy hook has actually been wired in.
type AllowAll struct{}

func (AllowAll) CheckCompatibility(identity string, run *docmodel.RunStart) error { return nil }
func (AllowAll) ModifyQueries(identity string) []map[string]interface{}           { return nil }

// OwnerOnly restricts each run to the identity recorded in its RunStart's
// Extra bag under ownerField, plus Admin. This is the common case: a
// facility attributing every run to the user who started it.
type OwnerOnly struct {
	OwnerField string
}

func NewOwnerOnly(ownerField string) OwnerOnly {
	if ownerField == "" {
		ownerField = "owner"
	}
	return OwnerOnly{OwnerField: ownerField}
}

func (p OwnerOnly) CheckCompatibility(identity string, run *docmodel.RunStart) error {
	if identity == Admin {
		return nil
	}
	owner, _ := run.Extra[p.OwnerField].(string)
	if owner != identity {
		return &docmodel.Error{
			Kind:    docmodel.KindAccessDenied,
			RunUid:  run.Uid,
			Message: "identity " + identity + " is not permitted to read this run",
		}
	}
	return nil
}

func (p OwnerOnly) ModifyQueries(identity string) []map[string]interface{} {
	if identity == Admin {
		return nil
	}
	return []map[string]interface{}{
		{p.OwnerField: map[string]interface{}{"$eq": identity}},
	}
}
