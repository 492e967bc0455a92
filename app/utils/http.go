package utils

import (
	"io"
	"log/slog"
	"net/http"
)

const maxDebugBody = 4 << 10

// DebugResponse logs the start of a failed response body and returns it.
func DebugResponse(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDebugBody))
	if err != nil {
		slog.Error("error while reading response body", "err", err)
	}
	attrs := []any{"status", resp.StatusCode, "body", string(b)}
	if resp.Request != nil {
		attrs = append(attrs, "url", resp.Request.URL.String())
	}
	slog.Debug("got response", attrs...)
	return string(b)
}
