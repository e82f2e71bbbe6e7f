package crm

import (
	"context"

	"github.com/google/uuid"
)

type changeKey struct{}

type changeInfo struct {
	actor  uuid.UUID
	reason string
}

// withChange carries the acting principal and the stated reason to the
// update hooks
func withChange(ctx context.Context, actor uuid.UUID, reason string) context.Context {
	return context.WithValue(ctx, changeKey{}, changeInfo{actor: actor, reason: reason})
}

func actorFrom(ctx context.Context) uuid.UUID {
	info, _ := ctx.Value(changeKey{}).(changeInfo)
	return info.actor
}

func reasonFrom(ctx context.Context) string {
	info, _ := ctx.Value(changeKey{}).(changeInfo)
	return info.reason
}
