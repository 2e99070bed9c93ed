// Package voice issues room-scoped access tokens for the realtime media
// transport. The token format follows the provider's JWT scheme: HS256,
// issuer set to the API key, and a "video" claim carrying room grants.
package voice

import (
	"fmt"
	"time"

	"github.com/browserteacher/browserteacher/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints access tokens for joining a voice room.
type Issuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
	agentName string
	ttl       time.Duration
}

// NewIssuer creates a token issuer from voice configuration.
func NewIssuer(cfg config.VoiceConfig) *Issuer {
	return &Issuer{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		wsURL:     cfg.WsURL,
		agentName: cfg.AgentName,
		ttl:       cfg.TokenTTL,
	}
}

// Token is the issued credential handed to the client.
type Token struct {
	AccessToken string `json:"accessToken"`
	Room        string `json:"room"`
	WsURL       string `json:"wsUrl"`
}

type videoGrant struct {
	RoomJoin     bool   `json:"roomJoin"`
	Room         string `json:"room"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type agentDispatch struct {
	AgentName string `json:"agentName"`
	Metadata  string `json:"metadata,omitempty"`
}

type roomConfig struct {
	Agents []agentDispatch `json:"agents,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Video      videoGrant  `json:"video"`
	RoomConfig *roomConfig `json:"roomConfig,omitempty"`
}

// Mint issues a token granting identity publish/subscribe access to room.
// An empty room gets a fresh lesson room name. When an agent name is
// configured, the token requests agent dispatch so a tutor worker auto-joins
// the room.
func (i *Issuer) Mint(identity, room string) (*Token, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity required")
	}
	if room == "" {
		room = "lesson-" + uuid.NewString()
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Video: videoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   true,
			CanSubscribe: true,
		},
	}
	if i.agentName != "" {
		claims.RoomConfig = &roomConfig{
			Agents: []agentDispatch{{AgentName: i.agentName, Metadata: "browserteacher"}},
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &Token{AccessToken: signed, Room: room, WsURL: i.wsURL}, nil
}
