package backend

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/restclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type captured struct {
	method string
	path   string
	body   []byte
}

func newBackend(t *testing.T, h func(ctx *fasthttp.RequestCtx, got *captured)) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		got.method = string(ctx.Method())
		got.path = string(ctx.Path())
		got.body = append([]byte(nil), ctx.PostBody()...)
		ctx.SetContentType("application/json")
		h(ctx, got)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	rc := restclient.New(restclient.Options{
		BaseURL: "http://crm.test",
		Timeout: time.Second,
		Dial:    func(string) (net.Conn, error) { return ln.Dial() },
	})
	return New(rc), got
}

func TestResource_ListAndGet(t *testing.T) {
	c, got := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		switch string(ctx.Path()) {
		case "/contacts":
			ctx.SetBodyString(`{"success":true,"data":[{"id_contact":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]}`)
		case "/contacts/2":
			ctx.SetBodyString(`{"id":2,"nom":"Rasoa","email":"r@ex.mg"}`)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})

	list, err := c.Contacts.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)

	one, err := c.Contacts.Get(context.Background(), ID(2))
	require.NoError(t, err)
	assert.Equal(t, "r@ex.mg", one.Email)
	assert.Equal(t, "/contacts/2", got.path)

	_, err = c.Contacts.Get(context.Background(), "../x/y")
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestResource_Delete(t *testing.T) {
	c, got := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})

	require.NoError(t, c.Taches.Delete(context.Background(), "8"))
	assert.Equal(t, fasthttp.MethodDelete, got.method)
	assert.Equal(t, "/taches/8", got.path)
}

func TestRaw(t *testing.T) {
	c, _ := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetBodyString(`[{"id":1,"libelle":"Printemps"}]`)
	})

	r, err := c.Raw("campagnes")
	require.NoError(t, err)
	items, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"id":1,"libelle":"Printemps"}`, string(items[0]))

	_, err = c.Raw("secrets")
	assert.True(t, errs.Is(err, errs.KindNotFound))
	assert.Contains(t, c.ResourceNames(), "historique-actions")
}

func TestSendEmail(t *testing.T) {
	c, got := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetBodyString(`{"message":"Email sent successfully"}`)
	})

	id, err := c.SendEmail(context.Background(), "a@ex.mg", "Objet", "Corps")
	require.NoError(t, err)

	assert.Empty(t, id)
	assert.Equal(t, "/send-email", got.path)
	assert.JSONEq(t, `{"destinator":"a@ex.mg","subject":"Objet","body":"Corps"}`, string(got.body))
}

func TestSendEmail_RelayRejects(t *testing.T) {
	c, _ := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"detail":"Failed to send email"}`)
	})

	_, err := c.SendEmail(context.Background(), "a@ex.mg", "Objet", "Corps")
	assert.True(t, errs.Is(err, errs.KindTransport))
	assert.Equal(t, "Failed to send email", err.Error())
}

func TestSendBulkSMS(t *testing.T) {
	c, got := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetBodyString(`{"success":true,"message":"1 SMS envoyé(s) avec succès, 1 échec(s)","total_sent":1,"total_failed":1,
			"results":[{"success":true,"contactName":"A B","recipient":"0341234567","contact_id":1,"message_id":"sms_1"},
			{"success":false,"contactName":"C D","recipient":"0331234567","contact_id":2,"error":"Échec de l'envoi SMS"}]}`)
	})

	out, err := c.SendBulkSMS(context.Background(), []model.Recipient{
		{ID: 1, Prenom: "A", Nom: "B", Phone: "0341234567"},
		{ID: 2, Prenom: "C", Nom: "D", Phone: "0331234567"},
	}, "Bonjour [Prénom]")
	require.NoError(t, err)

	assert.Equal(t, "/sms/send-bulk", got.path)
	var sent struct {
		Contacts []map[string]any `json:"contacts"`
		Message  string           `json:"message"`
	}
	require.NoError(t, json.Unmarshal(got.body, &sent))
	assert.Len(t, sent.Contacts, 2)
	assert.Equal(t, "0341234567", sent.Contacts[0]["telephone"])
	assert.Equal(t, "Bonjour [Prénom]", sent.Message)

	require.Len(t, out.Results, 2)
	assert.Equal(t, model.FlexID("sms_1"), out.Results[0].MessageID)
	assert.Equal(t, "Échec de l'envoi SMS", out.Results[1].Error)
}

func TestEmails_Save(t *testing.T) {
	c, got := newBackend(t, func(ctx *fasthttp.RequestCtx, _ *captured) {
		ctx.SetBodyString(`{"id_email":1}`)
	})
	at := time.Date(2025, 7, 19, 8, 30, 0, 0, time.UTC)

	err := c.Emails.Save(context.Background(), 12, model.Message{Subject: "Bonjour Ana", Body: "Texte"}, at)
	require.NoError(t, err)

	assert.Equal(t, fasthttp.MethodPost, got.method)
	assert.JSONEq(t, `{"id_contact":12,"objet":"Bonjour Ana","message":"Texte","date_envoyee":"2025-07-19T08:30:00Z","contact":{"id":12}}`, string(got.body))
}
