package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/arclabs/resourcefsm/internal/corelog"
	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// Gateway routes the fasthttp REST surface: resource creation and event
// dispatch, guarded by the bearer-JWT check in auth.go.
type Gateway struct {
	registry  *Registry
	jwtSecret []byte
	issuer    string
	logger    corelog.Logger
}

type eventRequest struct {
	Kind string `json:"kind"`
}

type eventResponse struct {
	ResourceID string `json:"resource_id"`
	State      string `json:"state"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	data, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.WriteString(`{"error":"internal","message":"failed to encode response"}`)
		return
	}
	ctx.Write(data)
}

// Handle dispatches to the right route by method and path. It is
// deliberately a flat switch rather than a router, since there are
// only two routes to match here (the stream route is served by
// StreamServer on its own listener).
func (g *Gateway) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case method == "POST" && path == "/resources":
		g.handleCreate(ctx)
	case method == "POST" && strings.HasSuffix(path, "/events") && strings.HasPrefix(path, "/resources/"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/resources/"), "/events")
		g.handleEvent(ctx, id)
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: "not_found", Message: "no such route"})
	}
}

func (g *Gateway) handleCreate(ctx *fasthttp.RequestCtx) {
	if err := authenticate(ctx, g.jwtSecret, g.issuer); err != nil {
		writeUnauthorized(ctx, err)
		return
	}
	res := g.registry.Create()
	writeJSON(ctx, fasthttp.StatusCreated, eventResponse{ResourceID: res.ID, State: string(res.CurrentState())})
}

func (g *Gateway) handleEvent(ctx *fasthttp.RequestCtx, id string) {
	if err := authenticate(ctx, g.jwtSecret, g.issuer); err != nil {
		writeUnauthorized(ctx, err)
		return
	}

	res, err := g.registry.Get(id)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
		return
	}

	var req eventRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	state, err := res.Handle(resource.Event{Kind: resource.EventKind(req.Kind)})
	if err != nil {
		var rejected *fsm.InvalidStateTransitionError[resource.State, resource.EventKind]
		if errors.As(err, &rejected) {
			writeJSON(ctx, fasthttp.StatusConflict, errorResponse{Error: "invalid_state_transition", Message: err.Error()})
			return
		}
		g.logger.Errorf("resourced: dispatch %s to %s: %v", req.Kind, id, err)
		writeJSON(ctx, fasthttp.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, eventResponse{ResourceID: id, State: string(state)})
}
