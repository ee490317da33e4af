package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// GeneratedPinLength is the length of PINs produced by RotatePin.
const GeneratedPinLength = 6

// SetPin replaces the app's PIN and revokes every session in the same
// transaction.
func (m *Manager) SetPin(ctx context.Context, appID, pin string) error {
	if err := utils.ValidatePin(pin); err != nil {
		return apperr.Wrap(err, apperr.InputInvalid, "invalid pin")
	}
	if err := m.ready(ctx); err != nil {
		return err
	}
	if _, err := m.apps.Get(ctx, appID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), m.cfg.BcryptCost)
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "hash pin")
	}

	var revoked int
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_pins (app_id, pin_hash, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(app_id) DO UPDATE SET pin_hash = excluded.pin_hash, updated_at = excluded.updated_at`,
			appID, string(hash), database.Millis(m.now())); err != nil {
			return fmt.Errorf("failed to store pin: %w", err)
		}
		var err error
		revoked, err = revokeAll(ctx, tx, appID)
		return err
	})
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "set pin")
	}

	m.logger.Info("PIN changed", zap.String("app_id", appID), zap.Int("sessions_revoked", revoked))
	return nil
}

// RotatePin generates a fresh PIN, stores it and revokes every session.
// The PIN is returned once and never stored in clear text.
func (m *Manager) RotatePin(ctx context.Context, appID string) (string, error) {
	pin, err := generatePin(GeneratedPinLength)
	if err != nil {
		return "", apperr.Wrap(err, apperr.Internal, "generate pin")
	}
	if err := m.SetPin(ctx, appID, pin); err != nil {
		return "", err
	}
	return pin, nil
}

// HasPin reports whether the app is PIN-gated.
func (m *Manager) HasPin(ctx context.Context, appID string) (bool, error) {
	hash, err := m.pinHash(ctx, appID)
	if apperr.IsKind(err, apperr.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hash != nil, nil
}

func (m *Manager) pinHash(ctx context.Context, appID string) ([]byte, error) {
	var hash string
	err := m.db.QueryRowContext(ctx, `SELECT pin_hash FROM app_pins WHERE app_id = ?`, appID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "no pin")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "load pin")
	}
	return []byte(hash), nil
}

func generatePin(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
