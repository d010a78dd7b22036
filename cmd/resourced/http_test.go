package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"github.com/arclabs/resourcefsm/internal/corelog"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

const testJWTSecret = "test-secret"
const testIssuer = "resourcefsm-test"

func signTestToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-user",
		"iss": testIssuer,
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func newTestGateway(t *testing.T) (*Gateway, *resource.LocalizedResource) {
	t.Helper()
	topology, err := resource.NewTopology()
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	registry := NewRegistry(context.Background(), topology, nil, corelog.NewDefaultLogger())
	res := registry.Create()

	return &Gateway{
		registry:  registry,
		jwtSecret: []byte(testJWTSecret),
		issuer:    testIssuer,
		logger:    corelog.NewDefaultLogger(),
	}, res
}

// newEventRequestCtx builds a *fasthttp.RequestCtx for POST
// /resources/{id}/events by hand: method, request URI and body set
// directly on a bare &fasthttp.RequestCtx{}, then fed straight to the
// handler under test rather than through a listening server.
func newEventRequestCtx(id, body, bearer string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/resources/" + id + "/events")
	ctx.Request.SetBody([]byte(body))
	if bearer != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ctx
}

func TestGateway_HandleEvent_MissingBearerReturns401(t *testing.T) {
	gateway, res := newTestGateway(t)

	ctx := newEventRequestCtx(res.ID, `{"kind":"REQUEST"}`, "")
	gateway.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", got, fasthttp.StatusUnauthorized)
	}
	if auth := string(ctx.Response.Header.Peek("WWW-Authenticate")); !strings.Contains(auth, "Bearer") {
		t.Fatalf("WWW-Authenticate header = %q, want a Bearer challenge", auth)
	}
}

func TestGateway_HandleEvent_InvalidTransitionReturns409(t *testing.T) {
	gateway, res := newTestGateway(t)

	// RELEASE is not a valid event from INIT.
	ctx := newEventRequestCtx(res.ID, `{"kind":"RELEASE"}`, signTestToken(t))
	gateway.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusConflict {
		t.Fatalf("status = %d, want %d", got, fasthttp.StatusConflict)
	}
	if got := res.CurrentState(); got != resource.StateInit {
		t.Fatalf("state = %v, want INIT unchanged after the rejected dispatch", got)
	}
}

func TestGateway_HandleEvent_ValidTransitionReturns200(t *testing.T) {
	gateway, res := newTestGateway(t)

	ctx := newEventRequestCtx(res.ID, `{"kind":"REQUEST"}`, signTestToken(t))
	gateway.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusOK {
		t.Fatalf("status = %d, want %d", got, fasthttp.StatusOK)
	}
	if got := res.CurrentState(); got != resource.StateDownloading {
		t.Fatalf("state = %v, want DOWNLOADING", got)
	}
}
