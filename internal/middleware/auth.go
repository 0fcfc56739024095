package middleware

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/api/transport"
)

// Claims carries the Telegram user id the token was issued for. The id may
// be encoded as a JSON number or a decimal string.
type Claims struct {
	UserID json.Number `json:"user_id"`
	jwt.RegisteredClaims
}

var hmacMethods = []string{"HS256", "HS384", "HS512"}

// JWTAuth validates HMAC bearer tokens and forwards the user id to handlers
// in the transport.UserIDHeader header. A non-empty issuer must match the
// iss claim. An empty secret rejects every request.
func JWTAuth(secret, issuer string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := jwt.NewParser(jwt.WithValidMethods(hmacMethods))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			ctx.Request.Header.Del(transport.UserIDHeader)

			raw := bearer(ctx)
			if secret == "" || raw == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				logger.Debug("rejected api token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			if issuer != "" && !claims.VerifyIssuer(issuer, true) {
				logger.Debug("rejected api token", zap.String("issuer", claims.Issuer))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			userID, err := strconv.ParseInt(claims.UserID.String(), 10, 64)
			if err != nil || userID <= 0 {
				logger.Debug("api token without a usable user_id claim")
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			ctx.Request.Header.Set(transport.UserIDHeader, strconv.FormatInt(userID, 10))

			next(ctx)
		}
	}
}

func bearer(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
