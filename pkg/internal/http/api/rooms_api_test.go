package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grantNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func useGrantKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	public := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	services.V = meetkit.NewVerifier(public).WithClock(func() time.Time { return grantNow })

	viper.Set("calling.api_key", "devkey")
	viper.Set("calling.api_secret", "a-secret-long-enough-for-livekit-tokens")
	viper.Set("calling.token_duration", 3600)
	viper.Set("calling.endpoint", "wss://media.example.com")
	return key
}

func signGrant(t *testing.T, key *rsa.PrivateKey, room string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, models.AccessClaims{
		RoomName:      room,
		ParticipantID: "p-1",
		DisplayName:   "Sam",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(grantNow.Add(time.Hour)),
		},
	}).SignedString(key)
	require.NoError(t, err)
	return token
}

func postMediaToken(t *testing.T, grant, body string) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	MapAPIs(app, "/api")

	req := httptest.NewRequest(fiber.MethodPost, "/api/rooms/room-1/media-token", strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if grant != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+grant)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = jsoniter.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func mediaTokenName(t *testing.T, token any) string {
	t.Helper()
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token.(string), claims)
	require.NoError(t, err)
	name, _ := claims["name"].(string)
	return name
}

func TestMediaTokenExchange(t *testing.T) {
	key := useGrantKey(t)

	status, body := postMediaToken(t, signGrant(t, key, "room-1"), "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "wss://media.example.com", body["endpoint"])
	assert.Equal(t, "Sam", mediaTokenName(t, body["token"]))

	status, body = postMediaToken(t, signGrant(t, key, "room-1"), `{"display_name":"Sam R."}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Sam R.", mediaTokenName(t, body["token"]))
}

func TestMediaTokenRejections(t *testing.T) {
	key := useGrantKey(t)

	status, _ := postMediaToken(t, "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = postMediaToken(t, signGrant(t, key, "room-2"), "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = postMediaToken(t, signGrant(t, key, "room-1"), `{"display_name":"`+strings.Repeat("x", 65)+`"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = postMediaToken(t, signGrant(t, key, "room-1"), `{broken`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
