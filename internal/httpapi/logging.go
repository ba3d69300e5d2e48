package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var zlog = zerolog.New(os.Stderr).With().Timestamp().Logger()

// SetLogger installs the logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// streamEcho logs every complete NDJSON line written to a /generate response.
type streamEcho struct {
	requestID string
	buf       []byte
}

func (e *streamEcho) Write(p []byte) (int, error) {
	e.buf = append(e.buf, p...)
	for {
		i := bytes.IndexByte(e.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		if i > 0 {
			zlog.Debug().Str("request_id", e.requestID).Bytes("line", e.buf[:i]).Msg("generate>")
		}
		e.buf = e.buf[i+1:]
	}
}

// parseLevel maps off|error|info|debug to a zerolog level. Empty means off;
// anything unknown means info.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return zerolog.Disabled
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug", "1":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// defaultLogLevel applies to requests that do not ask for their own level.
var defaultLogLevel = parseLevel(os.Getenv("MEDQA_HTTP_LOG_LEVEL"))

// SetDefaultLogLevel overrides the per-request default (off, error, info, debug).
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

// requestLogLevel honours ?log= first, then the X-Log-Level header.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logGenerate records the start or end of a /generate stream when lvl
// admits info.
func logGenerate(r *http.Request, lvl zerolog.Level, msg string, status int, start time.Time, jobID uint64, err error) {
	if lvl > zerolog.InfoLevel {
		return
	}
	z := zlog.Info().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if jobID != 0 {
		z = z.Uint64("job", jobID)
	}
	if status != 0 {
		z = z.Int("status", status).Dur("dur", time.Since(start))
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg(msg)
}
