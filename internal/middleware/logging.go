package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// LoggingInterceptor logs one record per unary RPC. Client faults log at
// WARN with the public message; internal and unknown failures log at ERROR
// with the full error chain.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []slog.Attr{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("peer", req.Peer().Addr),
				slog.Duration("elapsed", time.Since(start)),
			}
			// Empty outside the chi router.
			if id := chimw.GetReqID(ctx); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			level, msg := slog.LevelInfo, "RPC ok"
			if err != nil {
				var detail slog.Attr
				level, detail = failure(err)
				msg = "RPC error"
				attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), detail)
			}
			slog.LogAttrs(ctx, level, msg, attrs...)

			return resp, err
		}
	}
}

// failure picks the level and error attribute for a failed RPC.
func failure(err error) (slog.Level, slog.Attr) {
	switch connect.CodeOf(err) {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss:
		return slog.LevelError, slog.Any("error", err)
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return slog.LevelWarn, slog.String("error", cerr.Message())
	}
	return slog.LevelWarn, slog.Any("error", err)
}
