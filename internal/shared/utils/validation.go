package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Storage limits
const (
	MaxPatchOps      = 100
	MinKeyLength     = 1
	MaxKeyLength     = 256
	MaxValueSize     = 16 * 1024   // 16KB per value
	MaxSnapshotSize  = 1024 * 1024 // 1MB per namespace
	MaxNamespaceSize = 256
)

// Identifier limits
const (
	MaxIDLength       = 128
	MinPinLength      = 4
	MaxPinLength      = 8
	MaxRoomCodeLength = 48
	MaxRoomNameLength = 80
)

var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// PinPattern allows 4 to 8 digits
	PinPattern = regexp.MustCompile(`^[0-9]{4,8}$`)
	// RoomNamespacePattern matches app:<appId>:room:<code>
	RoomNamespacePattern = regexp.MustCompile(`^app:([^:]+):room:([a-z0-9-]{1,64})$`)
	// AppNamespacePattern matches app:<appId>
	AppNamespacePattern = regexp.MustCompile(`^app:([a-zA-Z0-9_-]+)$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}
	return nil
}

// ValidatePin validates a numeric PIN
func ValidatePin(pin string) error {
	if !PinPattern.MatchString(pin) {
		return fmt.Errorf("pin must be %d-%d digits", MinPinLength, MaxPinLength)
	}
	return nil
}

// ValidateKey validates a storage key
func ValidateKey(key string) error {
	n := len(key)
	if n < MinKeyLength || n > MaxKeyLength {
		return fmt.Errorf("key length must be between %d and %d", MinKeyLength, MaxKeyLength)
	}
	return nil
}

// Namespace describes a parsed storage namespace.
type Namespace struct {
	AppID    string
	RoomCode string
}

// IsRoom reports whether the namespace is room scoped.
func (n Namespace) IsRoom() bool {
	return n.RoomCode != ""
}

// ParseNamespace parses app:<appId> or app:<appId>:room:<code>.
func ParseNamespace(ns string) (Namespace, error) {
	if len(ns) == 0 || len(ns) > MaxNamespaceSize {
		return Namespace{}, fmt.Errorf("namespace length must be between 1 and %d", MaxNamespaceSize)
	}
	if m := RoomNamespacePattern.FindStringSubmatch(ns); m != nil {
		if !SafeIDPattern.MatchString(m[1]) {
			return Namespace{}, fmt.Errorf("namespace app id contains invalid characters")
		}
		return Namespace{AppID: m[1], RoomCode: m[2]}, nil
	}
	if m := AppNamespacePattern.FindStringSubmatch(ns); m != nil {
		return Namespace{AppID: m[1]}, nil
	}
	return Namespace{}, fmt.Errorf("invalid namespace %q", ns)
}

// RoomNamespace builds the namespace for a room.
func RoomNamespace(appID, roomCode string) string {
	return fmt.Sprintf("app:%s:room:%s", appID, strings.ToLower(roomCode))
}

// AppNamespace builds the app-wide namespace.
func AppNamespace(appID string) string {
	return "app:" + appID
}
