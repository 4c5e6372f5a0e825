// Package token issues and verifies the signed tokens the realtime protocol
// hands out: a host token on room creation and a session token on join. These
// are protocol plumbing, not an account system; a token only proves that the
// bearer was given an identity in a particular room.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleHost        = "host"
	RoleParticipant = "participant"
)

type Claims struct {
	RoomCode      string `json:"room_code"`
	ParticipantID string `json:"participant_id,omitempty"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	issuer string
}

func NewManager(secret, issuer string) *Manager {
	if issuer == "" {
		issuer = "pollsync"
	}
	return &Manager{secret: []byte(secret), issuer: issuer}
}

// Host mints the token returned to a poll's creator; presenting it on join
// marks that session as the room's host.
func (m *Manager) Host(roomCode string, ttl time.Duration) (string, error) {
	return m.sign(Claims{RoomCode: roomCode, Role: RoleHost}, ttl)
}

// Session mints the token returned in a join ack. A client reconnecting
// within the grace window presents it to resume the same participant.
func (m *Manager) Session(roomCode, participantID, role string, ttl time.Duration) (string, error) {
	return m.sign(Claims{RoomCode: roomCode, ParticipantID: participantID, Role: role}, ttl)
}

func (m *Manager) sign(claims Claims, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    m.issuer,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := t.Claims.(*Claims); ok && t.Valid {
		if claims.Issuer != m.issuer {
			return nil, jwt.ErrTokenInvalidIssuer
		}
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
