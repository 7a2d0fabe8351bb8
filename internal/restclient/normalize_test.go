package restclient

import (
	"context"
	"testing"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type item struct {
	ID  int    `json:"id"`
	Nom string `json:"nom"`
}

func TestNormalizeList_ShapesAgree(t *testing.T) {
	want := []item{{ID: 1, Nom: "Rabe"}, {ID: 2, Nom: "Rasoa"}}
	shapes := map[string]string{
		"bare":     `[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]`,
		"envelope": `{"success":true,"data":[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]}`,
		"data":     `{"data":[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]}`,
		"results":  `{"count":2,"results":[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]}`,
		"items":    ` {"items":[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]} `,
		"contacts": `{"contacts":[{"id":1,"nom":"Rabe"},{"id":2,"nom":"Rasoa"}]}`,
	}
	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := NormalizeList[item]([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalizeList_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", " ", `{"success":true,"data":null}`, `[]`} {
		got, err := NormalizeList[item]([]byte(raw))
		require.NoError(t, err, raw)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestNormalizeList_Failures(t *testing.T) {
	_, err := NormalizeList[item]([]byte(`{"success":false,"message":"Base indisponible"}`))
	assert.True(t, errs.Is(err, errs.KindTransport))
	assert.Equal(t, "Base indisponible", err.Error())

	_, err = NormalizeList[item]([]byte(`{"total":3}`))
	assert.True(t, errs.Is(err, errs.KindDecode))

	_, err = NormalizeList[item]([]byte(`{"data":{"id":1}}`))
	assert.True(t, errs.Is(err, errs.KindDecode))

	_, err = NormalizeList[item]([]byte(`"text"`))
	assert.True(t, errs.Is(err, errs.KindDecode))
}

func TestNormalizeOne(t *testing.T) {
	for _, raw := range []string{
		`{"id":3,"nom":"Be"}`,
		`{"success":true,"data":{"id":3,"nom":"Be"}}`,
		`{"data":{"id":3,"nom":"Be"}}`,
	} {
		got, err := NormalizeOne[item]([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, &item{ID: 3, Nom: "Be"}, got)
	}

	_, err := NormalizeOne[item]([]byte(`{"success":true,"data":null}`))
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = NormalizeOne[item]([]byte(`[1,2]`))
	assert.True(t, errs.Is(err, errs.KindDecode))
}

func TestGetList_ThroughClient(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"data":[{"id":5,"nom":"Solo"}]}`)
	})

	got, err := GetList[item](context.Background(), c, "/contacts", Config{})
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: 5, Nom: "Solo"}}, got)
}

func TestSend_EmptyAnswer(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})

	got, err := Send[item](context.Background(), c, "/contacts/5", MethodDelete, nil, Config{})
	require.NoError(t, err)
	assert.Nil(t, got)
}
