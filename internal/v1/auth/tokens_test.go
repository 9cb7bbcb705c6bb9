package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-at-least-32-characters!!"

func TestHostTokenRoundTrip(t *testing.T) {
	m := NewMinter(testSecret)

	token, err := m.HostToken("room_1", "ABC234", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyHost(token, "room_1")
	require.NoError(t, err)
	assert.Equal(t, RoleHost, claims.Role)
	assert.Equal(t, "ABC234", claims.RoomCode)
	assert.NotEmpty(t, claims.ID)
}

func TestPlayerTokenRoundTrip(t *testing.T) {
	m := NewMinter(testSecret)

	token, err := m.PlayerToken("room_1", "ABC234", "player_a", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyPlayer(token, "room_1", "player_a")
	require.NoError(t, err)
	assert.Equal(t, "player_a", claims.PlayerID)
}

func TestVerifyRejectsWrongRoom(t *testing.T) {
	m := NewMinter(testSecret)

	token, err := m.HostToken("room_1", "ABC234", time.Hour)
	require.NoError(t, err)

	_, err = m.VerifyHost(token, "room_2")
	assert.ErrorIs(t, err, ErrWrongRoom)
}

func TestVerifyRejectsRoleSwap(t *testing.T) {
	m := NewMinter(testSecret)

	playerToken, err := m.PlayerToken("room_1", "ABC234", "player_a", time.Hour)
	require.NoError(t, err)
	hostToken, err := m.HostToken("room_1", "ABC234", time.Hour)
	require.NoError(t, err)

	_, err = m.VerifyHost(playerToken, "room_1")
	assert.ErrorIs(t, err, ErrWrongRole)

	_, err = m.VerifyPlayer(hostToken, "room_1", "player_a")
	assert.ErrorIs(t, err, ErrWrongRole)
}

func TestVerifyRejectsWrongPlayer(t *testing.T) {
	m := NewMinter(testSecret)

	token, err := m.PlayerToken("room_1", "ABC234", "player_a", time.Hour)
	require.NoError(t, err)

	_, err = m.VerifyPlayer(token, "room_1", "player_b")
	assert.ErrorIs(t, err, ErrWrongPlayer)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewMinter(testSecret).HostToken("room_1", "ABC234", time.Hour)
	require.NoError(t, err)

	_, err = NewMinter("a-completely-different-32-char-secret!!!").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewMinter(testSecret)

	token, err := m.HostToken("room_1", "ABC234", -time.Minute)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	m := NewMinter(testSecret)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role:   RoleHost,
		RoomID: "room_1",
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Verify(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
