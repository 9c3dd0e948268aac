package meetkit

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/golang-jwt/jwt/v5"
)

// RejectedError explains why an access grant was refused. A rejected grant
// never becomes valid without being reissued.
type RejectedError struct {
	Reason models.RejectReason
	Err    error
}

func (v *RejectedError) Error() string {
	if v.Err != nil {
		return fmt.Sprintf("access grant rejected (%s): %v", v.Reason, v.Err)
	}
	return fmt.Sprintf("access grant rejected (%s)", v.Reason)
}

func (v *RejectedError) Unwrap() error { return v.Err }

// RejectionReason returns the reason carried by err, or an empty string when
// err is not a rejection.
func RejectionReason(err error) models.RejectReason {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return ""
}

// Verifier checks RS256 access grants against one public key. The key is
// parsed on first use and kept for the lifetime of the process.
type Verifier struct {
	pem string
	now func() time.Time

	once   sync.Once
	key    *rsa.PublicKey
	keyErr error
}

func NewVerifier(pem string) *Verifier {
	return &Verifier{pem: pem, now: time.Now}
}

// WithClock replaces the time source used for exp and nbf checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) publicKey() (*rsa.PublicKey, error) {
	v.once.Do(func() {
		pem := strings.TrimSpace(strings.ReplaceAll(v.pem, `\n`, "\n"))
		if pem == "" {
			v.keyErr = errors.New("public key is not configured")
			return
		}
		v.key, v.keyErr = jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	})
	return v.key, v.keyErr
}

// Verify validates the grant and returns its claims. When expectedRoom is not
// empty the grant must be for exactly that room.
func (v *Verifier) Verify(token string, expectedRoom string) (*models.AccessClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, &RejectedError{Reason: models.RejectMalformedToken}
	}
	// Any change to the signature segment, padding bits included, is a bad
	// signature rather than a malformed grant.
	if _, err := strictSegments.DecodeSegment(parts[2]); err != nil {
		return nil, &RejectedError{Reason: models.RejectBadSignature, Err: err}
	}

	key, err := v.publicKey()
	if err != nil {
		return nil, &RejectedError{Reason: models.RejectKeyUnavailable, Err: err}
	}

	var claims models.AccessClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, &RejectedError{Reason: classifyJwtError(err), Err: err}
	}

	if expectedRoom != "" && claims.RoomName != expectedRoom {
		return nil, &RejectedError{
			Reason: models.RejectRoomMismatch,
			Err:    fmt.Errorf("expected %q, got %q", expectedRoom, claims.RoomName),
		}
	}

	return &claims, nil
}

var strictSegments = jwt.NewParser(jwt.WithStrictDecoding())

func classifyJwtError(err error) models.RejectReason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return models.RejectBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.RejectExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return models.RejectNotYetValid
	default:
		return models.RejectMalformedToken
	}
}

// TokenFromQuery extracts the grant a client presents on its connect URL.
func TokenFromQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("token")
}
