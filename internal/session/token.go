package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired はトークンがJWTとして解釈でき、かつexpクレームがnow以前かを返す。
// 署名はサーバーが検証するため、ここでは検証しない。
// JWTとして解釈できないトークンやexpを持たないトークンはfalseを返す。
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
