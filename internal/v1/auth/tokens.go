// Package auth mints and verifies the room-scoped host and player tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waustin14/StoryFill/internal/v1/ident"
)

const (
	RoleHost   = "host"
	RolePlayer = "player"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongRoom    = errors.New("token issued for a different room")
	ErrWrongRole    = errors.New("token role mismatch")
	ErrWrongPlayer  = errors.New("token issued for a different player")
)

// Claims are the room-scoped claims carried by every StoryFill token.
type Claims struct {
	Role     string `json:"role"`
	RoomID   string `json:"room_id"`
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id,omitempty"`
	jwt.RegisteredClaims
}

// Minter signs and verifies tokens with a shared HS256 secret.
type Minter struct {
	secret []byte
}

// NewMinter creates a Minter from the configured secret.
func NewMinter(secret string) *Minter {
	return &Minter{secret: []byte(secret)}
}

// HostToken mints the privileged token handed to the room creator.
func (m *Minter) HostToken(roomID, roomCode string, ttl time.Duration) (string, error) {
	return m.sign(&Claims{
		Role:     RoleHost,
		RoomID:   roomID,
		RoomCode: roomCode,
	}, ttl)
}

// PlayerToken mints the per-player token returned on join.
func (m *Minter) PlayerToken(roomID, roomCode, playerID string, ttl time.Duration) (string, error) {
	return m.sign(&Claims{
		Role:     RolePlayer,
		RoomID:   roomID,
		RoomCode: roomCode,
		PlayerID: playerID,
	}, ttl)
}

func (m *Minter) sign(claims *Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        ident.NewID("jti"),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, rejecting any signing method other
// than HS256.
func (m *Minter) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyHost checks that tokenString is a live host token for roomID.
func (m *Minter) VerifyHost(tokenString, roomID string) (*Claims, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleHost {
		return nil, ErrWrongRole
	}
	if !ident.Equal(claims.RoomID, roomID) {
		return nil, ErrWrongRoom
	}
	return claims, nil
}

// VerifyPlayer checks that tokenString is a live player token for the given
// room and player.
func (m *Minter) VerifyPlayer(tokenString, roomID, playerID string) (*Claims, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != RolePlayer {
		return nil, ErrWrongRole
	}
	if !ident.Equal(claims.RoomID, roomID) {
		return nil, ErrWrongRoom
	}
	if !ident.Equal(claims.PlayerID, playerID) {
		return nil, ErrWrongPlayer
	}
	return claims, nil
}
