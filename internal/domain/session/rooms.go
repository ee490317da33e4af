package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

const (
	// DemoRoomCode is the shared room every app gets.
	DemoRoomCode = "demo"
	// DemoRoomName is the demo room's display name.
	DemoRoomName = "Demo room"
	// MinRoomNameLength is the shortest accepted room name.
	MinRoomNameLength = 2
)

var namePolicy = bluemonday.StrictPolicy()

// RoomAccess is the result of entering a room.
type RoomAccess struct {
	Room      types.Room `json:"room"`
	Namespace string     `json:"namespace"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Pin       string     `json:"pin,omitempty"`
}

// CreateRoom creates a PIN-protected room and returns a token for it.
func (m *Manager) CreateRoom(ctx context.Context, appID, name, pin string) (*RoomAccess, error) {
	name, err := m.roomRequest(ctx, appID, name, pin)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), m.cfg.BcryptCost)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "hash room pin")
	}

	room := types.Room{
		AppID:     appID,
		Code:      RoomCode(name),
		Name:      name,
		CreatedAt: m.now(),
	}
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rooms WHERE app_id = ? AND is_demo = 0`, appID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count rooms: %w", err)
		}
		if count >= m.cfg.MaxRoomsPerApp {
			return apperr.E(apperr.Conflict, "room limit of %d reached", m.cfg.MaxRoomsPerApp)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (app_id, code, name, pin_hash, is_demo, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(app_id, code) DO NOTHING`,
			appID, room.Code, room.Name, string(hash), database.Millis(room.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.E(apperr.Conflict, "room %q already exists", room.Code)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.Internal, "create room")
	}

	m.logger.Info("Room created", zap.String("app_id", appID), zap.String("room", room.Code))
	return m.access(room, "")
}

// JoinRoom checks the room PIN and returns a token for the room.
func (m *Manager) JoinRoom(ctx context.Context, appID, name, pin string) (*RoomAccess, error) {
	name, err := m.roomRequest(ctx, appID, name, pin)
	if err != nil {
		return nil, err
	}

	room, hash, err := m.room(ctx, appID, RoomCode(name))
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, apperr.E(apperr.Forbidden, "room is locked")
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pin)) != nil {
		return nil, apperr.E(apperr.Forbidden, "invalid room pin")
	}
	return m.access(*room, "")
}

// DemoRoom returns access to the app's shared demo room, creating it on
// first use. The demo room is available even when rooms are disabled.
func (m *Manager) DemoRoom(ctx context.Context, appID string) (*RoomAccess, error) {
	if _, err := m.apps.Get(ctx, appID); err != nil {
		return nil, err
	}

	room, _, err := m.room(ctx, appID, DemoRoomCode)
	if apperr.IsKind(err, apperr.NotFound) {
		hash, herr := bcrypt.GenerateFromPassword([]byte(m.cfg.DemoPin), m.cfg.BcryptCost)
		if herr != nil {
			return nil, apperr.Wrap(herr, apperr.Internal, "hash demo pin")
		}
		if _, err := m.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO rooms (app_id, code, name, pin_hash, is_demo, created_at)
			VALUES (?, ?, ?, ?, 1, ?)`,
			appID, DemoRoomCode, DemoRoomName, string(hash), database.Millis(m.now())); err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "create demo room")
		}
		room, _, err = m.room(ctx, appID, DemoRoomCode)
	}
	if err != nil {
		return nil, err
	}
	return m.access(*room, m.cfg.DemoPin)
}

// ListRooms returns the app's rooms, demo room first.
func (m *Manager) ListRooms(ctx context.Context, appID string) ([]types.Room, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT code, name, is_demo, created_at FROM rooms
		WHERE app_id = ? ORDER BY is_demo DESC, created_at ASC`, appID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "list rooms")
	}
	defer rows.Close()

	rooms := make([]types.Room, 0)
	for rows.Next() {
		var (
			r       = types.Room{AppID: appID}
			demo    int
			created int64
		)
		if err := rows.Scan(&r.Code, &r.Name, &demo, &created); err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "scan room")
		}
		r.IsDemo = demo != 0
		r.CreatedAt = database.FromMillis(created)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// roomRequest validates a create or join request and returns the cleaned
// display name.
func (m *Manager) roomRequest(ctx context.Context, appID, name, pin string) (string, error) {
	if err := utils.ValidateID(appID, "appId", true); err != nil {
		return "", apperr.Wrap(err, apperr.InputInvalid, "invalid room request")
	}
	if err := utils.ValidatePin(pin); err != nil {
		return "", apperr.Wrap(err, apperr.InputInvalid, "invalid room request")
	}
	name = RoomName(name)
	if err := utils.ValidateString(name, "roomName", MinRoomNameLength, utils.MaxRoomNameLength, true); err != nil {
		return "", apperr.Wrap(err, apperr.InputInvalid, "invalid room request")
	}

	app, err := m.apps.Get(ctx, appID)
	if err != nil {
		return "", err
	}
	if !app.Capabilities.Rooms {
		return "", apperr.E(apperr.Forbidden, "rooms are disabled for this app")
	}
	return name, nil
}

func (m *Manager) room(ctx context.Context, appID, code string) (*types.Room, []byte, error) {
	var (
		r       = types.Room{AppID: appID, Code: code}
		hash    string
		demo    int
		created int64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT name, pin_hash, is_demo, created_at FROM rooms WHERE app_id = ? AND code = ?`,
		appID, code).Scan(&r.Name, &hash, &demo, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperr.E(apperr.NotFound, "room not found")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.Internal, "load room")
	}
	r.IsDemo = demo != 0
	r.CreatedAt = database.FromMillis(created)
	return &r, []byte(hash), nil
}

func (m *Manager) access(room types.Room, pin string) (*RoomAccess, error) {
	ns := utils.RoomNamespace(room.AppID, room.Code)
	token, exp, err := m.IssueRoomToken(types.RoomClaims{
		AppID:     room.AppID,
		RoomCode:  room.Code,
		Namespace: ns,
		IsDemo:    room.IsDemo,
		RoomName:  room.Name,
	})
	if err != nil {
		return nil, err
	}
	return &RoomAccess{Room: room, Namespace: ns, Token: token, ExpiresAt: exp, Pin: pin}, nil
}

// RoomName strips markup and surrounding space from a display name and
// bounds its length.
func RoomName(name string) string {
	name = strings.TrimSpace(namePolicy.Sanitize(name))
	if r := []rune(name); len(r) > utils.MaxRoomNameLength {
		name = strings.TrimSpace(string(r[:utils.MaxRoomNameLength]))
	}
	return name
}

// RoomCode derives the room code from a display name: accents are folded
// to ASCII, runs of other characters become single hyphens, and the result
// is lower-cased and bounded. Names with no usable characters get a random
// code.
func RoomCode(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(unicode.ToLower(r))
		default:
			hyphen = true
		}
	}

	code := b.String()
	if len(code) > utils.MaxRoomCodeLength {
		code = strings.TrimRight(code[:utils.MaxRoomCodeLength], "-")
	}
	if code == "" {
		return "room-" + randomSuffix(6)
	}
	return code
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}
