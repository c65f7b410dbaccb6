// Package middleware holds Connect interceptors shared by every service.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call.
// Client-facing failures (invalid input, quota, timeline) log at warn level,
// internal failures at error level.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure
			peer := req.Peer().Addr

			resp, err := next(ctx, req)

			duration := time.Since(start).Milliseconds()
			if err == nil {
				slog.Info("RPC ok",
					"procedure", procedure,
					"peer", peer,
					"duration_ms", duration,
				)
				return resp, nil
			}

			code := connect.CodeOf(err)
			level := slog.LevelWarn
			var connectErr *connect.Error
			if !errors.As(err, &connectErr) || code == connect.CodeInternal || code == connect.CodeUnknown {
				level = slog.LevelError
			}
			slog.Log(ctx, level, "RPC error",
				"procedure", procedure,
				"code", code.String(),
				"error", err,
				"peer", peer,
				"duration_ms", duration,
			)
			return resp, err
		}
	}
}
