// Package session implements elevation sessions: after the user proves the
// vault passphrase, the app self-issues a short-lived signed token that the
// store backends check before releasing locked records. The signing key is
// random per process, so a session never outlives the program.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"otpkeeper/internal/common"
)

// Claims carries the store identifier the elevation was granted for.
type Claims struct {
	jwt.RegisteredClaims
	StoreID string
}

// Manager issues and checks elevation tokens. It satisfies the store
// layer's Elevation interface.
type Manager struct {
	secretKey []byte
	ttl       time.Duration

	mu    sync.Mutex
	token string
}

// NewManager returns a manager whose elevations last for ttl.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{secretKey: common.GenerateRandByteArray(32), ttl: ttl}
}

// Elevate grants elevated access for the configured ttl.
func (m *Manager) Elevate(storeID string) error {
	id, err := common.MakeRandHexString(8)
	if err != nil {
		return err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
		},
		StoreID: storeID,
	})

	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.token = signed
	m.mu.Unlock()
	return nil
}

// Drop revokes the current elevation immediately.
func (m *Manager) Drop() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// Valid reports whether an unexpired elevation is held.
func (m *Manager) Valid() bool {
	_, err := m.parse()
	return err == nil
}

// StoreID returns the store identifier of the current elevation, or
// ErrSessionExpired when no valid elevation is held.
func (m *Manager) StoreID() (string, error) {
	claims, err := m.parse()
	if err != nil {
		return "", err
	}
	return claims.StoreID, nil
}

func (m *Manager) parse() (*Claims, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == "" {
		return nil, common.ErrSessionExpired
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, common.ErrSessionExpired
	}
	return claims, nil
}
