package security

import (
	"errors"
	"net/http"
	"time"

	"ctf_arena/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie jwtauth's TokenFromCookie looks for.
const SessionCookieName = "jwt"

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

// GenerateToken issues the session token carried in the cookie. The profile
// claims are a display snapshot only; authorization always re-reads the user
// row, never these claims.
func GenerateToken(userID, displayName string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":      userID,
		"display_name": displayName,
		"exp":          time.Now().Add(config.AppConfig.JWTExp).Unix(),
		"iat":          time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// SessionCookie wraps a token into the cookie delivered to the browser.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(config.AppConfig.JWTExp),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredSessionCookie clears the session on logout.
func ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}
