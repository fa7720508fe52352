package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type requestDataKey struct{}

// RequestData identifies one API request and, once authenticated, its caller.
type RequestData struct {
	TraceID   string
	RequestID string
	UserID    uuid.UUID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(Default(ctx), requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, _ := ctx.Value(requestDataKey{}).(*RequestData)
	return rd
}

// WithUser returns a copy of ctx whose request data carries userID.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	next := RequestData{}
	if rd := GetRequestData(ctx); rd != nil {
		next = *rd
	}
	next.UserID = userID
	return WithRequestData(ctx, &next)
}

// UserID returns the authenticated user for ctx, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return uuid.Nil
}

func TraceID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.TraceID
	}
	return ""
}
