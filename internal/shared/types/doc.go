// Package types provides the records shared across the build pipeline and
// the runtime perimeter.
//
// Core Types:
//   - BuildRecord: one build attempt and its lifecycle status
//   - ArtifactIndex, ArtifactMeta, Manifest: what a build produced
//   - AppRecord: the published app, its versions and security policy
//   - Snapshot, PatchOp: namespaced key-value storage
//   - PinSession, RoomClaims: runtime access control
package types
