// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"emperror.dev/emperror"
	"github.com/golang-jwt/jwt"
	"github.com/justinas/alice"
	"github.com/xmidt-org/bascule"
	"github.com/xmidt-org/bascule/basculechecks"
	"github.com/xmidt-org/bascule/basculehttp"
	"go.uber.org/zap"
)

const (
	jwtPrincipalKey = "sub"
	jwtTokenType    = "jwt"
	basicTokenType  = "basic"
)

var (
	errMissingToken      = errors.New("missing bearer token")
	errInvalidToken      = errors.New("invalid bearer token")
	errUnexpectedSigning = errors.New("unexpected signing method")
)

// hmacKeyfunc only accepts HMAC signed tokens.
func hmacKeyfunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", errUnexpectedSigning, token.Header["alg"])
		}
		return secret, nil
	}
}

// hmacTokenFactory turns a bearer value signed with a shared secret into a
// bascule token carrying the jwt claims.
type hmacTokenFactory struct {
	secret []byte
}

// ParseAndValidate expects value to be a jwt signed with the shared secret
// and carrying a string subject.
func (f hmacTokenFactory) ParseAndValidate(_ context.Context, _ *http.Request, _ bascule.Authorization, value string) (bascule.Token, error) {
	if len(value) == 0 {
		return nil, errMissingToken
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(value, claims, hmacKeyfunc(f.secret))
	if err != nil {
		return nil, emperror.Wrap(err, "failed to parse JWS")
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	principal, ok := claims[jwtPrincipalKey].(string)
	if !ok || principal == "" {
		return nil, emperror.WrapWith(errInvalidToken, "principal value not found", "principal key", jwtPrincipalKey)
	}
	return bascule.NewToken(jwtTokenType, principal, bascule.NewAttributes(claims)), nil
}

// authChain returns the bascule constructor and enforcer guarding the primary
// server. Without a secret or basic users every request is let through.
func authChain(config AuthConfig, logger *zap.Logger) alice.Chain {
	var (
		coptions = []basculehttp.COption{
			basculehttp.WithCErrorResponseFunc(func(reason basculehttp.ErrorResponseReason, err error) {
				logger.Debug("rejected request", zap.String("reason", reason.String()), zap.Error(err))
			}),
		}
		types []string
	)
	if config.JWT.Secret != "" {
		coptions = append(coptions, basculehttp.WithTokenFactory("Bearer", hmacTokenFactory{secret: []byte(config.JWT.Secret)}))
		types = append(types, jwtTokenType)
	}
	if len(config.Basic) > 0 {
		coptions = append(coptions, basculehttp.WithTokenFactory("Basic", basculehttp.BasicTokenFactory(config.Basic)))
		types = append(types, basicTokenType)
	}
	if len(types) == 0 {
		logger.Warn("no jwt secret or basic users configured, the admin api is not authenticated")
		return alice.New()
	}

	rules := bascule.Validators{
		basculechecks.NonEmptyPrincipal(),
		basculechecks.ValidType(types),
	}
	return alice.New(
		basculehttp.NewConstructor(coptions...),
		basculehttp.NewEnforcer(
			basculehttp.WithRules("Bearer", rules),
			basculehttp.WithRules("Basic", rules),
		),
	)
}
