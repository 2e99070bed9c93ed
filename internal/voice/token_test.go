package voice

import (
	"strings"
	"testing"
	"time"

	"github.com/browserteacher/browserteacher/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

func testIssuer(agentName string) *Issuer {
	return NewIssuer(config.VoiceConfig{
		WsURL:     "wss://voice.example",
		APIKey:    "key",
		APISecret: "secret",
		AgentName: agentName,
		TokenTTL:  time.Hour,
	})
}

func parseToken(t *testing.T, raw string) *tokenClaims {
	t.Helper()
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token not valid")
	}
	return parsed.Claims.(*tokenClaims)
}

func TestMintRequiresIdentity(t *testing.T) {
	if _, err := testIssuer("").Mint("", "room"); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestMintEmbedsRoomGrants(t *testing.T) {
	token, err := testIssuer("").Mint("learner", "lesson-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if token.Room != "lesson-1" {
		t.Errorf("explicit room not passed through, got %q", token.Room)
	}

	claims := parseToken(t, token.AccessToken)
	if claims.Issuer != "key" {
		t.Errorf("expected issuer key, got %q", claims.Issuer)
	}
	if claims.Subject != "learner" {
		t.Errorf("expected subject learner, got %q", claims.Subject)
	}
	if !claims.Video.RoomJoin || claims.Video.Room != "lesson-1" {
		t.Errorf("unexpected video grant: %+v", claims.Video)
	}
	if !claims.Video.CanPublish || !claims.Video.CanSubscribe {
		t.Errorf("expected publish/subscribe grants: %+v", claims.Video)
	}
	if claims.RoomConfig != nil {
		t.Errorf("expected no agent dispatch without agent name, got %+v", claims.RoomConfig)
	}
}

func TestMintGeneratesLessonRoom(t *testing.T) {
	token, err := testIssuer("").Mint("learner", "")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !strings.HasPrefix(token.Room, "lesson-") {
		t.Errorf("expected generated lesson room, got %q", token.Room)
	}

	claims := parseToken(t, token.AccessToken)
	if claims.Video.Room != token.Room {
		t.Errorf("grant room %q does not match issued room %q", claims.Video.Room, token.Room)
	}
}

func TestMintRequestsAgentDispatch(t *testing.T) {
	token, err := testIssuer("teacher-agent").Mint("learner", "lesson-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims := parseToken(t, token.AccessToken)
	if claims.RoomConfig == nil || len(claims.RoomConfig.Agents) != 1 {
		t.Fatalf("expected one dispatched agent, got %+v", claims.RoomConfig)
	}
	if claims.RoomConfig.Agents[0].AgentName != "teacher-agent" {
		t.Errorf("unexpected agent name %q", claims.RoomConfig.Agents[0].AgentName)
	}
}
