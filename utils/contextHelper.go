package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/receipts_backend/appctx"
)

var (
	ContextKeyWorkspaceId   = appctx.ContextKeyWorkspaceId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetWorkspaceIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyWorkspaceId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetWorkspaceIdInContext(ctx context.Context, workspaceId string) context.Context {
	return appctx.Set(ctx, ContextKeyWorkspaceId, workspaceId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
