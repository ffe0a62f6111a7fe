package registry

import (
	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
)

// Action is an operation the policy gate decides on.
type Action string

// Actions the gate recognizes.
const (
	ActionIngest Action = "ingest"
	ActionCite   Action = "cite"
	ActionExport Action = "export"
)

// Decision is the result of one policy evaluation. Reason is empty when
// Allowed is true; on denial it carries the machine-readable reason the
// caller must include in its audit log line.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decide evaluates whether action is permitted for sourceID in env.
//
// Unknown sources are always denied in hardened environments
// (production, staging, ci). In development an unknown source may be
// cited — useful when pointing the assistant at a sandbox feed — but
// never ingested or exported.
//
// Decide has no side effects; the caller pairs every denial with a
// structured audit record carrying the source id and reason.
func (r *Registry) Decide(sourceID string, env caselaw.Environment, action Action) Decision {
	src, known := r.Get(sourceID)
	if !known {
		if !env.Hardened() && action == ActionCite {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, Reason: caselaw.ReasonUnknownSource}
	}

	perms, ok := src.Environments[env]
	if !ok {
		perms = Permissions{}
	}

	switch action {
	case ActionIngest:
		if perms.Ingest {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, Reason: caselaw.ReasonSourceIngestDisabled}
	case ActionCite:
		if perms.Cite {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, Reason: caselaw.ReasonSourceCiteDisabled}
	case ActionExport:
		if perms.Export {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, Reason: caselaw.ReasonSourceExportDisabled}
	}
	return Decision{Allowed: false, Reason: caselaw.ReasonUnknownSource}
}
