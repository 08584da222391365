package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"
	"github.com/rs/zerolog/log"

	"github.com/opencampus/trail/internal/domain"
	servermw "github.com/opencampus/trail/internal/server/middleware"
)

// maxCapturedBody bounds how much of a request or response body the
// interceptor keeps for resolvers. Larger bodies are truncated, not rejected.
const maxCapturedBody = 64 << 10

// Exchange is what resolvers see: the wrapped handler's request plus the
// status and captured bodies after the handler ran.
type Exchange struct {
	Request *http.Request
	Status  int

	respBody []byte
	reqBody  []byte

	respJSON map[string]any
	reqJSON  map[string]any
}

// Param returns a chi route parameter.
func (ex *Exchange) Param(key string) string {
	return chi.URLParam(ex.Request, key)
}

// ResponseField returns a top-level string-ish field of the JSON response body.
func (ex *Exchange) ResponseField(key string) string {
	if ex.respJSON == nil {
		ex.respJSON = decodeJSONObject(ex.respBody)
	}
	return stringField(ex.respJSON, key)
}

// RequestField returns a top-level string-ish field of the JSON request body.
func (ex *Exchange) RequestField(key string) string {
	if ex.reqJSON == nil {
		ex.reqJSON = decodeJSONObject(ex.reqBody)
	}
	return stringField(ex.reqJSON, key)
}

// RouteConfig describes how to synthesize an event for one state-changing
// route. EntityID, EntityName and Description are optional; the defaults walk
// the fallback chain route param -> response field -> request field -> a
// literal unknown.
type RouteConfig struct {
	Action       string
	Category     domain.Category
	ResourceType string

	EntityID    func(ex *Exchange) string
	EntityName  func(ex *Exchange) string
	Description func(ex *Exchange) string
}

// Intercept wraps a handler of a state-changing route and records an audit
// event when the handler answers 2xx. Route owners pick exactly one capture
// path per route: this middleware or an explicit Log* call, never both.
// The wrapped response is never altered or delayed; any failure in here is
// logged and swallowed.
func Intercept(rec *Recorder, cfg RouteConfig) func(http.Handler) http.Handler {
	if cfg.EntityID == nil {
		cfg.EntityID = defaultEntityID
	}
	if cfg.EntityName == nil {
		cfg.EntityName = defaultEntityName
	}
	if cfg.Description == nil {
		cfg.Description = defaultDescription(cfg.Action)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqBody := captureRequestBody(r)

			ww := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			if ww.status < 200 || ww.status >= 300 {
				return
			}

			ex := &Exchange{
				Request:  r,
				Status:   ww.status,
				respBody: ww.body.Bytes(),
				reqBody:  reqBody,
			}
			recordIntercepted(rec, cfg, ex)
		})
	}
}

// recordIntercepted synthesizes and enqueues the event. Resolver panics are
// contained here so they can never reach the client.
func recordIntercepted(rec *Recorder, cfg RouteConfig, ex *Exchange) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Str("action", cfg.Action).Msg("audit interceptor recovered")
		}
	}()

	entityID := cfg.EntityID(ex)
	entityName := cfg.EntityName(ex)

	e := &domain.AuditEvent{
		Action:   cfg.Action,
		Category: cfg.Category,
		Details:  cfg.Description(ex),
		Status:   domain.StatusSuccess,
		Metadata: requestMetadata(ex.Request),
	}
	actorFromRequest(ex.Request).apply(e)
	Resource{Type: cfg.ResourceType, ID: entityID, Name: entityName}.apply(e)

	if err := rec.Record(ex.Request.Context(), e); err != nil {
		log.Warn().Err(err).Str("action", cfg.Action).Msg("intercepted event rejected")
	}
}

// actorFromRequest reads the authenticated identity placed in the context by
// the auth middleware. Requests without one are attributed to the system.
func actorFromRequest(r *http.Request) Actor {
	ctx := r.Context()
	id, ok := servermw.UserIDFromContext(ctx)
	if !ok {
		return Actor{}
	}

	actor := Actor{ID: id}
	if name, ok := servermw.UserNameFromContext(ctx); ok {
		actor.Name = name
	}
	if email, ok := servermw.UserEmailFromContext(ctx); ok {
		actor.Email = email
	}
	if role, ok := servermw.RoleFromContext(ctx); ok && domain.ActorType(role).Valid() {
		actor.Type = domain.ActorType(role)
	} else {
		actor.Type = domain.ActorSystem
	}
	return actor
}

// requestMetadata captures where the action came from: client IP, raw user
// agent, and the parsed browser/OS/device so operators do not have to decode
// UA strings by hand.
func requestMetadata(r *http.Request) domain.Metadata {
	meta := domain.Metadata{
		"ipAddress": r.RemoteAddr,
		"method":    r.Method,
		"path":      r.URL.Path,
	}

	if rawUA := r.UserAgent(); rawUA != "" {
		meta["userAgent"] = rawUA
		ua := useragent.New(rawUA)
		browser, version := ua.Browser()
		if browser != "" {
			meta["browser"] = browser + " " + version
		}
		if os := ua.OS(); os != "" {
			meta["os"] = os
		}
		if ua.Mobile() {
			meta["device"] = "mobile"
		} else {
			meta["device"] = "desktop"
		}
	}
	return meta
}

func defaultEntityID(ex *Exchange) string {
	if v := ex.Param("id"); v != "" {
		return v
	}
	if v := ex.ResponseField("id"); v != "" {
		return v
	}
	if v := ex.RequestField("id"); v != "" {
		return v
	}
	return "unknown"
}

func defaultEntityName(ex *Exchange) string {
	for _, key := range []string{"name", "title"} {
		if v := ex.ResponseField(key); v != "" {
			return v
		}
	}
	for _, key := range []string{"name", "title"} {
		if v := ex.RequestField(key); v != "" {
			return v
		}
	}
	return "Unknown"
}

func defaultDescription(action string) func(ex *Exchange) string {
	return func(ex *Exchange) string {
		return fmt.Sprintf("%s: %s", domain.HumanizeAction(action), defaultEntityName(ex))
	}
}

// captureRequestBody reads up to maxCapturedBody bytes and splices them back
// in front of the unread remainder, so the wrapped handler sees the full body
// and anything past the capture prefix streams through unbuffered.
func captureRequestBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	if err != nil {
		log.Debug().Err(err).Msg("audit interceptor request body read")
		return nil
	}

	body := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), body), body}
	return buf
}

// captureWriter tees the response status and a bounded prefix of the body.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if remaining := maxCapturedBody - w.body.Len(); remaining > 0 {
		if len(p) <= remaining {
			w.body.Write(p)
		} else {
			w.body.Write(p[:remaining])
		}
	}
	return w.ResponseWriter.Write(p)
}

func decodeJSONObject(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}
