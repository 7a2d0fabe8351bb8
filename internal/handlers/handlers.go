package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
)

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errs.Validation("empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errs.Validation("invalid JSON: %s", err.Error())
	}
	return nil
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("[handlers] encode response", "error", err, "path", string(ctx.Path()))
		status, b = xhttp.StatusInternalServerError, []byte(`{"error":"internal error"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeErr answers with the status matching the error kind. Errors without
// a kind are logged and hidden behind a 500.
func writeErr(ctx *xhttp.RequestCtx, err error) {
	status := errs.HTTPStatus(err)
	if status == xhttp.StatusInternalServerError {
		logger.Error("[handlers] request failed", "error", err, "path", string(ctx.Path()), "request_id", ctx.UserValue("request_id"))
		writeError(ctx, status, "internal error")
		return
	}
	writeError(ctx, status, errs.UserMessage(err))
}

func writeCSV(ctx *xhttp.RequestCtx, filename string, body []byte) {
	ctx.Response.Header.Set("Content-Type", "text/csv; charset=utf-8")
	ctx.Response.Header.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyRaw(body)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(query(ctx, key))
	return n
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func paramInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	id, err := strconv.ParseInt(param(ctx, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validation("invalid %s", name)
	}
	return id, nil
}

func parseTime(s string) (time.Time, error) {
	// RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
