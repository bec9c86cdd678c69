// Package router dispatches inbound envelopes to their handlers and keeps
// every failure scoped to the session it came from.
package router

import (
	"context"
	"fmt"

	"mnemos/backend/internal/chat"
	"mnemos/backend/internal/graphviz"
	"mnemos/backend/internal/knowledge"
	"mnemos/backend/internal/protocol"
	"mnemos/backend/pkg/config"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

// ClientSession is the slice of session behavior the router needs. The
// concrete implementation is session.Session; tests substitute fakes.
type ClientSession interface {
	SessionID() string
	Emit(env protocol.Outbound) error
	RecordInbound(kind string)
}

// Router inspects an envelope's kind and runs the matching handler
type Router struct {
	orchestrator *chat.Orchestrator
	knowledge    knowledge.Gateway
	cfg          *config.Config
	logger       *zap.Logger
}

// New creates a message router
func New(orch *chat.Orchestrator, kg knowledge.Gateway, cfg *config.Config) *Router {
	return &Router{
		orchestrator: orch,
		knowledge:    kg,
		cfg:          cfg,
		logger:       logger.Get(),
	}
}

// Route handles one raw inbound frame for a session. It never panics the
// caller: any error or panic while handling becomes an error envelope on the
// same session, and other sessions are unaffected.
func (rt *Router) Route(ctx context.Context, sess ClientSession, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error("Recovered panic while handling envelope",
				zap.String("session_id", sess.SessionID()),
				zap.Any("panic", rec),
			)
			rt.sendError(sess, "internal error while handling message")
		}
	}()

	in, err := protocol.Decode(raw)
	if err != nil {
		rt.logger.Warn("Rejected inbound envelope",
			zap.String("session_id", sess.SessionID()),
			zap.Error(err),
		)
		rt.sendError(sess, err.Error())
		return
	}
	sess.RecordInbound(in.Kind)

	switch in.Kind {
	case protocol.KindChat:
		// Runs in the session's worker goroutine, which serializes chat
		// requests per session; other sessions have their own workers.
		rt.orchestrator.Run(ctx, sess, in.Chat)

	case protocol.KindQuery:
		rt.handleQuery(ctx, sess, in.Query)

	case protocol.KindGraph:
		rt.handleGraph(ctx, sess, in.Graph)
	}
}

// handleQuery answers a one-shot retrieval with exactly one envelope:
// query_result on success, error otherwise
func (rt *Router) handleQuery(ctx context.Context, sess ClientSession, req *protocol.QueryRequest) {
	limit := req.Limit
	if limit <= 0 {
		limit = rt.cfg.FactQueryLimit
	}

	mc, err := rt.knowledge.QueryFacts(ctx, req.Text, limit, false)
	if err != nil {
		rt.logger.Warn("Fact query failed",
			zap.String("session_id", sess.SessionID()),
			zap.Error(err),
		)
		rt.sendError(sess, "knowledge query failed")
		return
	}

	rt.emit(sess, protocol.QueryResult(mc))
}

func (rt *Router) handleGraph(ctx context.Context, sess ClientSession, req *protocol.GraphRequest) {
	limit := req.Limit
	if limit <= 0 {
		limit = rt.cfg.GraphQueryLimit
	}

	mc, err := rt.knowledge.QueryFacts(ctx, req.Query, limit, false)
	if err != nil {
		rt.logger.Warn("Graph fact query failed",
			zap.String("session_id", sess.SessionID()),
			zap.Error(err),
		)
		rt.sendError(sess, "graph query failed")
		return
	}

	rt.emit(sess, protocol.GraphData(graphviz.Transform(mc.Facts)))
}

func (rt *Router) sendError(sess ClientSession, message string) {
	rt.emit(sess, protocol.Error(message))
}

func (rt *Router) emit(sess ClientSession, env protocol.Outbound) {
	if err := sess.Emit(env); err != nil {
		rt.logger.Debug(fmt.Sprintf("Dropped %s for closed session", env.Kind),
			zap.String("session_id", sess.SessionID()),
		)
	}
}
