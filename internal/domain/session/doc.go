// Package session gates apps behind a PIN and issues visitor sessions.
//
// PINs and room PINs are stored as bcrypt hashes. A successful
// verification creates a session keyed by a random UUID and bound to a
// salted hash of the caller's IP address; the raw address is never stored.
//
// Session lifecycle:
//  1. VerifyAndCreateSession checks the PIN and inserts a session
//  2. Touch refreshes last_seen_at and rejects revoked or expired sessions
//  3. Revoke / RevokeAll mark sessions revoked; SetPin and RotatePin revoke
//     every session of the app in the same transaction as the PIN change
//  4. Sweep deletes revoked, expired and idle sessions
//
// Sessions kept by older deployments in a JSON file are imported once
// before first use, after which the file is renamed to <path>.bak.
//
// Rooms are named shared spaces inside an app. Joining a room yields a
// signed token scoping storage access to app:<appId>:room:<code>.
//
// Example Usage:
//
//	manager := session.NewManager(db, apps, session.Config{SessionTTL: ttl}, logger)
//	sess, err := manager.VerifyAndCreateSession(ctx, appID, pin, client)
//	_, err = manager.Touch(ctx, appID, sess.ID)
package session
