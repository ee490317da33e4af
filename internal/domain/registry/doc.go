// Package registry stores app records: who owns an app, which build is
// current, which is pending review, and the archived versions behind it.
//
// Components:
//   - Manager: app record persistence with a bounded read cache
//   - Versions: Publish, SetPending, ApprovePending, Promote, ListVersions
//   - Seeder: loads app records from YAML files on startup
//
// Every version change is a read-modify-write inside one transaction, so
// concurrent publishes for the same app apply one after the other.
//
// Example Usage:
//
//	reg := registry.NewManager(db, 30*24*time.Hour, logger)
//	rec, err := reg.Publish(ctx, "app-1", "bld_01J...")
//	versions, err := reg.ListVersions(ctx, "app-1")
package registry
