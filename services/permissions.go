package services

import "sort"

// AllPermissionKeys is the catalog of recognized permission flags.
// Permission templates and user grants are subsets of this list.
var AllPermissionKeys = []string{
	"view_leads", "create_leads", "edit_leads", "delete_leads", "assign_leads",
	"view_measurements", "create_measurements",
	"view_materials", "manage_materials",
	"view_templates", "manage_templates",
	"view_quotes", "create_quotes", "edit_quotes", "delete_quotes",
	"send_quotes", "accept_quotes", "apply_discounts",
	"view_invoices", "create_invoices", "edit_invoices", "delete_invoices", "send_invoices",
	"record_payments", "refund_payments",
	"view_material_orders", "create_material_orders", "edit_material_orders", "delete_material_orders",
	"view_work_orders", "create_work_orders", "edit_work_orders", "delete_work_orders", "schedule_work_orders",
	"view_reports", "export_data",
	"view_users", "create_users", "edit_users", "suspend_users",
	"manage_permissions", "manage_settings",
	"view_activity_logs", "manage_email_templates",
}

var knownPermissions = func() map[string]bool {
	m := make(map[string]bool, len(AllPermissionKeys))
	for _, k := range AllPermissionKeys {
		m[k] = true
	}
	return m
}()

// PermissionSet is a capability set of permission keys. Modeling the
// flags as a set (instead of dozens of discrete booleans) makes
// copy/apply-template operations atomic and diffable.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given keys.
func NewPermissionSet(keys ...string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether the set contains key.
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the contained keys in sorted order.
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Union returns a new set containing the keys of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Replace returns a copy of other, discarding the receiver's keys.
// Used when a permission template is applied wholesale to a user.
func (s PermissionSet) Replace(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(other))
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Diff reports what changes when moving from s to other: keys gained
// and keys lost, both sorted.
func (s PermissionSet) Diff(other PermissionSet) (added, removed []string) {
	added = []string{}
	removed = []string{}
	for k := range other {
		if !s.Has(k) {
			added = append(added, k)
		}
	}
	for k := range s {
		if !other.Has(k) {
			removed = append(removed, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Normalize returns a copy of the set with unrecognized keys dropped.
func (s PermissionSet) Normalize() PermissionSet {
	out := make(PermissionSet, len(s))
	for k := range s {
		if knownPermissions[k] {
			out[k] = struct{}{}
		}
	}
	return out
}
