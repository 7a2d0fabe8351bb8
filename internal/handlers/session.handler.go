package handlers

import (
	"errors"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/session"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
	"github.com/valyala/fasthttp"
)

type SessionHandler struct {
	store     session.Store
	cookie    string
	ttl       time.Duration
	validator *RequestValidator
}

func NewSessionHandler(store session.Store, cookie string, ttl time.Duration, v *RequestValidator) *SessionHandler {
	if cookie == "" {
		cookie = session.DefaultCookie
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &SessionHandler{store: store, cookie: cookie, ttl: ttl, validator: v}
}

func RegisterSessionRoutes(g *router.Group, h *SessionHandler) {
	g.GET("/session", h.Current)
	g.PUT("/session", h.SetCurrent)
	g.DELETE("/session", h.Clear)
}

type sessionRequest struct {
	ID    model.FlexID `json:"id_utilisateur"`
	Nom   string       `json:"nom" validate:"max=255"`
	Email string       `json:"email" validate:"omitempty,email"`
	Role  string       `json:"role"`
}

// sid reads the session id from the header first, then the cookie.
func (h *SessionHandler) sid(ctx *xhttp.RequestCtx) string {
	if v := ctx.Request.Header.Peek(session.Header); len(v) > 0 {
		return string(v)
	}
	return string(ctx.Request.Header.Cookie(h.cookie))
}

func (h *SessionHandler) Current(ctx *xhttp.RequestCtx) {
	sess, err := h.store.Current(ctx, h.sid(ctx))
	if errors.Is(err, session.ErrNoSession) {
		writeError(ctx, xhttp.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, sess)
}

func (h *SessionHandler) SetCurrent(ctx *xhttp.RequestCtx) {
	var req sessionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeErr(ctx, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeErr(ctx, err)
		return
	}
	user := model.SessionUser{ID: req.ID, Nom: req.Nom, Email: req.Email, Role: req.Role}
	sid, err := h.store.SetCurrent(ctx, h.sid(ctx), user)
	if err != nil {
		writeErr(ctx, err)
		return
	}

	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(h.cookie)
	c.SetValue(sid)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetMaxAge(int(h.ttl.Seconds()))
	ctx.Response.Header.SetCookie(c)
	ctx.Response.Header.Set(session.Header, sid)

	writeJSON(ctx, xhttp.StatusOK, model.Session{ID: sid, User: user})
}

func (h *SessionHandler) Clear(ctx *xhttp.RequestCtx) {
	if err := h.store.Clear(ctx, h.sid(ctx)); err != nil {
		writeErr(ctx, err)
		return
	}
	ctx.Response.Header.DelClientCookie(h.cookie)
	ctx.SetStatusCode(xhttp.StatusNoContent)
}
