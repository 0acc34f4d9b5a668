package api

import (
	"context"

	"github.com/org/archpilot/pkg/models"
)

type contextKey string

const (
	ctxKeySession   contextKey = "session"
	ctxKeyRequestID contextKey = "request_id"
)

// sessionHolder lets middleware installed before authentication observe
// the session resolved later in the chain.
type sessionHolder struct {
	session *models.Session
}

func withSessionHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeySession, &sessionHolder{})
}

func setSession(ctx context.Context, s *models.Session) {
	if h, ok := ctx.Value(ctxKeySession).(*sessionHolder); ok {
		h.session = s
	}
}

func sessionFromCtx(ctx context.Context) *models.Session {
	if h, ok := ctx.Value(ctxKeySession).(*sessionHolder); ok {
		return h.session
	}
	return nil
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
