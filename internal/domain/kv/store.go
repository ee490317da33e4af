// Package kv is namespaced JSON storage with optimistic concurrency.
//
// Every namespace carries an integer version. A patch names the version it
// was computed against; the compare and the write happen in one
// transaction, so of two patches against the same version exactly one
// lands and the other receives the winner's snapshot.
package kv

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// ConflictError is returned when a patch's version is stale. Current is the
// authoritative snapshot at the time of the check.
type ConflictError struct {
	Current *types.Snapshot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("namespace %s is at version %s", e.Current.Namespace, e.Current.Version)
}

// Unwrap classifies the conflict for the error taxonomy.
func (e *ConflictError) Unwrap() error {
	return apperr.E(apperr.Conflict, "version mismatch")
}

// Store reads and patches namespaces.
type Store struct {
	db      *database.DB
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewStore creates a store on db.
func NewStore(db *database.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// WithMetrics adds metrics tracking to the store
func (s *Store) WithMetrics(metrics *monitoring.Metrics) *Store {
	s.metrics = metrics
	return s
}

// Get returns a namespace. A namespace never written is empty at version 0.
func (s *Store) Get(ctx context.Context, ns string) (*types.Snapshot, error) {
	if _, err := utils.ParseNamespace(ns); err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid namespace")
	}
	snap, _, err := read(ctx, s.db.DB, ns)
	return snap, err
}

// Patch applies ops in order if ifMatch equals the namespace's current
// version. On a mismatch it returns *ConflictError.
func (s *Store) Patch(ctx context.Context, ns string, ops []types.PatchOp, ifMatch string) (*types.Snapshot, error) {
	snap, err := s.patch(ctx, ns, ops, ifMatch)
	outcome := "applied"
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		outcome = "conflict"
	case err != nil:
		outcome = string(apperr.KindOf(err))
	}
	s.metrics.RecordStoragePatch(outcome, len(ops))
	return snap, err
}

func (s *Store) patch(ctx context.Context, ns string, ops []types.PatchOp, ifMatch string) (*types.Snapshot, error) {
	if _, err := utils.ParseNamespace(ns); err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid namespace")
	}
	expected, err := ParseVersion(ifMatch)
	if err != nil {
		return nil, err
	}
	if err := ValidateOps(ops); err != nil {
		return nil, err
	}

	var out *types.Snapshot
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, version, err := read(ctx, tx, ns)
		if err != nil {
			return err
		}
		if version != expected {
			return &ConflictError{Current: current}
		}

		data := apply(current.Data, ops)
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode namespace: %w", err)
		}
		if len(encoded) > utils.MaxSnapshotSize {
			return apperr.E(apperr.InputInvalid, "namespace would exceed %d bytes", utils.MaxSnapshotSize)
		}

		next := version + 1
		now := database.Millis(s.now())
		var res sql.Result
		if version == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO kv (namespace, version, data, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT(namespace) DO NOTHING`,
				ns, next, string(encoded), now)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE kv SET version = ?, data = ?, updated_at = ? WHERE namespace = ? AND version = ?`,
				next, string(encoded), now, ns, version)
		}
		if err != nil {
			return fmt.Errorf("failed to write namespace: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			latest, _, rerr := read(ctx, tx, ns)
			if rerr != nil {
				return rerr
			}
			return &ConflictError{Current: latest}
		}

		out = &types.Snapshot{Namespace: ns, Version: FormatVersion(next), Data: data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func read(ctx context.Context, q queryer, ns string) (*types.Snapshot, int64, error) {
	var (
		version int64
		data    string
	)
	err := q.QueryRowContext(ctx, `SELECT version, data FROM kv WHERE namespace = ?`, ns).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.Snapshot{Namespace: ns, Version: FormatVersion(0), Data: map[string]json.RawMessage{}}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read namespace: %w", err)
	}
	snap := &types.Snapshot{Namespace: ns, Version: FormatVersion(version), Data: map[string]json.RawMessage{}}
	if err := json.Unmarshal([]byte(data), &snap.Data); err != nil {
		return nil, 0, fmt.Errorf("failed to decode namespace: %w", err)
	}
	return snap, version, nil
}

func apply(current map[string]json.RawMessage, ops []types.PatchOp) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(current))
	for k, v := range current {
		data[k] = v
	}
	for _, op := range ops {
		switch op.Op {
		case types.OpSet:
			data[op.Key] = compact(op.Value)
		case types.OpDel:
			delete(data, op.Key)
		case types.OpClear:
			data = make(map[string]json.RawMessage)
		}
	}
	return data
}

func compact(v json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return v
	}
	return buf.Bytes()
}

// ValidateOps checks op count, kinds, keys and values.
func ValidateOps(ops []types.PatchOp) error {
	if len(ops) == 0 {
		return apperr.E(apperr.InputInvalid, "patch has no operations")
	}
	if len(ops) > utils.MaxPatchOps {
		return apperr.E(apperr.InputInvalid, "patch has %d operations (max %d)", len(ops), utils.MaxPatchOps)
	}
	for i, op := range ops {
		switch op.Op {
		case types.OpSet:
			if err := utils.ValidateKey(op.Key); err != nil {
				return apperr.Wrap(err, apperr.InputInvalid, fmt.Sprintf("op %d", i))
			}
			if len(op.Value) == 0 || !json.Valid(op.Value) {
				return apperr.E(apperr.InputInvalid, "op %d: value must be valid JSON", i)
			}
			if len(op.Value) > utils.MaxValueSize {
				return apperr.E(apperr.InputInvalid, "op %d: value exceeds %d bytes", i, utils.MaxValueSize)
			}
		case types.OpDel:
			if err := utils.ValidateKey(op.Key); err != nil {
				return apperr.Wrap(err, apperr.InputInvalid, fmt.Sprintf("op %d", i))
			}
		case types.OpClear:
		default:
			return apperr.E(apperr.InputInvalid, "op %d: unknown operation %q", i, op.Op)
		}
	}
	return nil
}

// FormatVersion renders a version as the token handed to clients.
func FormatVersion(v int64) string {
	return strconv.FormatInt(v, 10)
}

// ParseVersion parses a version token, tolerating ETag quoting.
func ParseVersion(token string) (int64, error) {
	t := strings.TrimSpace(token)
	t = strings.TrimPrefix(t, "W/")
	t = strings.Trim(t, `"`)
	if t == "" {
		return 0, apperr.E(apperr.InputInvalid, "a version precondition is required")
	}
	v, err := strconv.ParseInt(t, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.E(apperr.InputInvalid, "invalid version %q", token)
	}
	return v, nil
}
