package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateToken_AndValidateToken(t *testing.T) {
	userID := uuid.New()
	secret := "test-secret"

	token, err := CreateToken(userID, secret, 7)
	require.NoError(t, err)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, userID.String(), claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	userID := uuid.New()
	token, err := CreateToken(userID, "secret-a", 7)
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret-b")
	require.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	userID := uuid.New()
	token, err := CreateToken(userID, "secret", -1)
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret")
	require.Error(t, err)
}

func TestCreateToken_SessionClaims(t *testing.T) {
	token, err := CreateToken(uuid.New(), "secret", 7)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, TokenIssuer, claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"od_session"}, claims.Audience)
	require.NotEmpty(t, claims.ID)
}

func TestValidateToken_RejectsForeignTokens(t *testing.T) {
	userID := uuid.New()
	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() Claims {
		return Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}

	_, err := ValidateToken(sign(jwt.SigningMethodHS256, []byte("secret"), valid()), "secret")
	require.NoError(t, err)

	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	otherAudience := valid()
	otherAudience.Audience = jwt.ClaimStrings{"api"}
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	mismatchedSubject := valid()
	mismatchedSubject.Subject = uuid.NewString()

	for name, token := range map[string]string{
		"issuer":   sign(jwt.SigningMethodHS256, []byte("secret"), otherIssuer),
		"audience": sign(jwt.SigningMethodHS256, []byte("secret"), otherAudience),
		"expiry":   sign(jwt.SigningMethodHS256, []byte("secret"), noExpiry),
		"subject":  sign(jwt.SigningMethodHS256, []byte("secret"), mismatchedSubject),
		"method":   sign(jwt.SigningMethodHS512, []byte("secret"), valid()),
		"none":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()),
	} {
		_, err := ValidateToken(token, "secret")
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}
