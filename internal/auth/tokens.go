package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"facekiosk/internal/errs"
)

// adminSubject is the refresh-token owner for admin sessions.
const adminSubject = "admin"

var (
	ErrInvalidPIN     = errors.New("invalid pin")
	ErrAdminDisabled  = errors.New("admin login is not configured")
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
)

// DeviceStore persists registered devices and issued refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	// ConsumeRefreshToken revokes a live token and returns its owner, or errs.ErrNotFound.
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
}

// Settings configures token issuance and the admin PIN.
type Settings struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	AdminPIN   string
	// AdminPINHash is a bcrypt hash; it takes precedence over AdminPIN.
	AdminPINHash string
}

// Tokens registers kiosk devices, logs admins in and rotates refresh tokens.
type Tokens struct {
	store    DeviceStore
	settings Settings
}

// NewTokens creates the token service.
func NewTokens(store DeviceStore, settings Settings) *Tokens {
	return &Tokens{store: store, settings: settings}
}

// RegisterDevice records the device and issues a device token pair.
func (t *Tokens) RegisterDevice(ctx context.Context, deviceID string) (TokenPair, error) {
	if deviceID == "" {
		return TokenPair{}, errs.Required("device_id")
	}
	if err := t.store.UpsertDevice(ctx, deviceID); err != nil {
		return TokenPair{}, errs.Persistence("register device", err)
	}
	log.Printf("device %s registered", deviceID)
	return t.issue(ctx, deviceID, RoleDevice)
}

// AdminLogin checks pin and issues an admin token pair.
func (t *Tokens) AdminLogin(ctx context.Context, pin string) (TokenPair, error) {
	if pin == "" {
		return TokenPair{}, errs.Required("pin")
	}
	if t.settings.AdminPIN == "" && t.settings.AdminPINHash == "" {
		return TokenPair{}, ErrAdminDisabled
	}
	if !CheckPIN(pin, t.settings.AdminPIN, t.settings.AdminPINHash) {
		log.Printf("warning: failed admin login attempt")
		return TokenPair{}, ErrInvalidPIN
	}
	return t.issue(ctx, adminSubject, RoleAdmin)
}

// Refresh exchanges a refresh token for a new pair. Each refresh token works once.
func (t *Tokens) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := Parse(refreshToken, t.settings.SigningKey, t.settings.Issuer)
	if err != nil || claims.Kind != KindRefresh {
		return TokenPair{}, ErrInvalidRefresh
	}
	owner, err := t.store.ConsumeRefreshToken(ctx, refreshToken)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && owner != claims.Subject) {
		return TokenPair{}, ErrInvalidRefresh
	}
	if err != nil {
		return TokenPair{}, errs.Persistence("consume refresh token", err)
	}
	return t.issue(ctx, claims.Subject, claims.Role)
}

func (t *Tokens) issue(ctx context.Context, subject, role string) (TokenPair, error) {
	s := t.settings
	pair, err := Issue(subject, role, s.Issuer, s.SigningKey, s.AccessTTL, s.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token issue failed: %w", err)
	}
	if err := t.store.SaveRefreshToken(ctx, subject, pair.RefreshToken, pair.RefreshExp); err != nil {
		return TokenPair{}, errs.Persistence("save refresh token", err)
	}
	return pair, nil
}

// CheckPIN compares pin against a bcrypt hash when one is set, otherwise against the
// plain value in constant time.
func CheckPIN(pin, plain, hash string) bool {
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
	}
	if plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pin), []byte(plain)) == 1
}

// HashPIN returns a bcrypt hash suitable for ADMIN_PIN_HASH.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", errs.Required("pin")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func newTokenID() string { return uuid.NewString() }
