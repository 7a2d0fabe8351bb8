package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(failureRate float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := NewStore()
	store.Seed()
	return SetupRouter(NewHandler(store, failureRate, 1))
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCollections(t *testing.T) {
	r := setupRouter(0)

	w := do(t, r, "GET", "/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var contacts []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contacts))
	assert.Len(t, contacts, 3)

	w = do(t, r, "GET", "/entreprises", nil)
	var env struct {
		Success bool             `json:"success"`
		Data    []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Len(t, env.Data, 1)

	w = do(t, r, "POST", "/contacts", map[string]any{"prenom": "Lova", "email": "lova@example.mg"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":4`)

	w = do(t, r, "PUT", "/contacts/4", map[string]any{"fonction": "DG"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fonction":"DG"`)
	assert.Contains(t, w.Body.String(), `"prenom":"Lova"`)

	assert.Equal(t, http.StatusNoContent, do(t, r, "DELETE", "/contacts/4", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/contacts/4", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/secrets", nil).Code)
}

func TestSendEmail(t *testing.T) {
	w := do(t, setupRouter(0), "POST", "/send-email", map[string]string{"destinator": "ana@example.mg", "subject": "s", "body": "b"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"messageId":`)

	w = do(t, setupRouter(1), "POST", "/send-email", map[string]string{"destinator": "ana@example.mg", "subject": "s", "body": "b"})
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = do(t, setupRouter(0), "POST", "/send-email", map[string]string{"destinator": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendBulkSMS(t *testing.T) {
	r := setupRouter(0)
	w := do(t, r, "POST", "/sms/send-bulk", map[string]any{
		"contacts": []map[string]any{{"id": 1, "prenom": "Ana", "nom": "Rakoto", "telephone": "0341234567"}},
		"message":  "Salama [Prénom] [Nom]",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Success   bool `json:"success"`
		TotalSent int  `json:"total_sent"`
		Results   []struct {
			Success   bool   `json:"success"`
			Recipient string `json:"recipient"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.TotalSent)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "0341234567", res.Results[0].Recipient)

	w = do(t, r, "GET", "/sms/history", nil)
	assert.Contains(t, w.Body.String(), "Salama Ana Rakoto")

	w = do(t, r, "GET", "/sms/stats", nil)
	assert.Contains(t, w.Body.String(), `"total_sms":1`)
}

func TestGatewaySendAndHealth(t *testing.T) {
	req := map[string]string{"message_id": "m-1", "phone_number": "+261341234567", "content": "x"}

	w := do(t, setupRouter(0), "POST", "/api/v1/sms/send", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"DELIVERED"`)

	w = do(t, setupRouter(1), "POST", "/api/v1/sms/send", req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FAILED"`)

	w = do(t, setupRouter(0), "GET", "/health", nil)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}
