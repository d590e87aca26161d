package logx

import (
	"context"

	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	nodeKey contextKey = iota
	blockKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithNode annotates the logger with the node id if present.
func WithNode(ctx context.Context, nodeID schema.NodeID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if nodeID != "" {
		if current, ok := ctx.Value(nodeKey).(schema.NodeID); ok && current == nodeID {
			return log
		}
		log = log.With("node", nodeID)
	}
	return log
}

// WithNodeBlock annotates the logger with node and block identifiers.
func WithNodeBlock(ctx context.Context, nodeID schema.NodeID, blockID schema.BlockID) pslog.Logger {
	log := WithNode(ctx, nodeID)
	if blockID != "" {
		if current, ok := ctx.Value(blockKey).(schema.BlockID); ok && current == blockID {
			return log
		}
		log = log.With("block", blockID)
	}
	return log
}

// WithToken annotates the logger with a token id when available.
func WithToken(log pslog.Logger, tokenID schema.TokenID) pslog.Logger {
	if tokenID != "" {
		log = log.With("token", tokenID)
	}
	return log
}

// ContextWithNode stores the node marker on the context for log de-duplication.
func ContextWithNode(ctx context.Context, nodeID schema.NodeID) context.Context {
	if ctx == nil || nodeID == "" {
		return ctx
	}
	return context.WithValue(ctx, nodeKey, nodeID)
}

// ContextWithBlock stores the block marker on the context for log de-duplication.
func ContextWithBlock(ctx context.Context, blockID schema.BlockID) context.Context {
	if ctx == nil || blockID == "" {
		return ctx
	}
	return context.WithValue(ctx, blockKey, blockID)
}

// ContextWithNodeLogger attaches the logger and node marker to the context.
func ContextWithNodeLogger(ctx context.Context, log pslog.Logger, nodeID schema.NodeID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithNode(ctx, nodeID)
}

// CopyContextFields copies node/block markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if node, ok := src.Value(nodeKey).(schema.NodeID); ok && node != "" {
		dst = ContextWithNode(dst, node)
	}
	if block, ok := src.Value(blockKey).(schema.BlockID); ok && block != "" {
		dst = ContextWithBlock(dst, block)
	}
	return dst
}
