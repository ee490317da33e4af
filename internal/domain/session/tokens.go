package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

const (
	// MinTokenTTL is the shortest room token lifetime.
	MinTokenTTL = time.Minute
	tokenIssuer = "forge-rooms"
)

// ErrInvalidToken is returned for any room token that fails verification.
var ErrInvalidToken = apperr.E(apperr.Forbidden, "invalid room token")

// RoomTokenClaims is the signed payload of a room token.
type RoomTokenClaims struct {
	types.RoomClaims
	jwt.RegisteredClaims
}

// IssueRoomToken signs a room token with HS256.
func (m *Manager) IssueRoomToken(claims types.RoomClaims) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RoomTokenClaims{
		RoomClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   claims.Namespace,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(err, apperr.Internal, "sign room token")
	}
	return signed, exp, nil
}

// VerifyRoomToken checks a room token's signature, expiry and namespace.
func (m *Manager) VerifyRoomToken(raw string) (*types.RoomClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &RoomTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*RoomTokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Namespace != utils.RoomNamespace(claims.AppID, claims.RoomCode) {
		return nil, ErrInvalidToken
	}
	return &claims.RoomClaims, nil
}

// AuthorizeNamespace checks that a room-scoped namespace is covered by the
// token. App-wide namespaces need no token.
func (m *Manager) AuthorizeNamespace(ns, raw string) error {
	parsed, err := utils.ParseNamespace(ns)
	if err != nil {
		return apperr.Wrap(err, apperr.InputInvalid, "invalid namespace")
	}
	if !parsed.IsRoom() {
		return nil
	}
	if raw == "" {
		return apperr.E(apperr.Forbidden, "room token required")
	}
	claims, err := m.VerifyRoomToken(raw)
	if err != nil {
		return err
	}
	if claims.Namespace != ns {
		return apperr.E(apperr.Forbidden, "room token does not cover namespace")
	}
	return nil
}
