package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func run(token string) (*fasthttp.RequestCtx, string) {
	var seen string
	handler := JWTAuth("secret", "", nil)(func(ctx *fasthttp.RequestCtx) {
		seen = string(ctx.Request.Header.Peek("X-User-ID"))
	})
	ctx := &fasthttp.RequestCtx{}
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	handler(ctx)
	return ctx, seen
}

func TestJWTAuthForwardsUserID(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	_, seen := run(signed(t, "secret", jwt.MapClaims{"user_id": 123456789, "exp": exp}))
	assert.Equal(t, "123456789", seen)

	_, seen = run(signed(t, "secret", jwt.MapClaims{"user_id": "42", "exp": exp}))
	assert.Equal(t, "42", seen)
}

func TestJWTAuthRejects(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cases := map[string]string{
		"missing":      "",
		"wrong secret": signed(t, "other", jwt.MapClaims{"user_id": 1, "exp": exp}),
		"expired":      signed(t, "secret", jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no user":      signed(t, "secret", jwt.MapClaims{"exp": exp}),
	}
	for name, token := range cases {
		ctx, seen := run(token)
		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode(), name)
		assert.Empty(t, seen, name)
	}
}

func TestJWTAuthWithoutSecretRejectsAll(t *testing.T) {
	handler := JWTAuth("", "", nil)(func(ctx *fasthttp.RequestCtx) {
		t.Fatal("handler must not run")
	})
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("Authorization", "Bearer "+signed(t, "", jwt.MapClaims{"user_id": 1}))
	handler(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestJWTAuthChecksIssuer(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	var seen string
	handler := JWTAuth("secret", "taskbot", nil)(func(ctx *fasthttp.RequestCtx) {
		seen = string(ctx.Request.Header.Peek("X-User-ID"))
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("Authorization", "bearer "+signed(t, "secret", jwt.MapClaims{"user_id": 5, "iss": "other", "exp": exp}))
	handler(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("Authorization", "Bearer "+signed(t, "secret", jwt.MapClaims{"user_id": 5, "iss": "taskbot", "exp": exp}))
	handler(ctx)
	assert.Equal(t, "5", seen)
}

func TestJWTAuthIgnoresClientSuppliedUserID(t *testing.T) {
	handler := JWTAuth("secret", "", nil)(func(ctx *fasthttp.RequestCtx) {
		t.Fatal("handler must not run")
	})
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-User-ID", "1")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Empty(t, ctx.Request.Header.Peek("X-User-ID"))
}

func TestJWTAuthRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	ctx, seen := run(token)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Empty(t, seen)
}
