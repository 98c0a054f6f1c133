package pool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"finvault/e2ee/logger"

	"github.com/zoobzio/capitan"
)

var (
	SignalPoolStarted      = capitan.NewSignal("pool.started", "Worker contexts started")
	SignalSchemaBroadcast  = capitan.NewSignal("pool.schema.broadcast", "Schema sent to every context")
	SignalKeysBroadcast    = capitan.NewSignal("pool.keys.broadcast", "Session keys loaded in every context")
	SignalLogout           = capitan.NewSignal("pool.logout", "Key store cleared and contexts emptied")
	SignalDispatchComplete = capitan.NewSignal("pool.dispatch.complete", "Encrypt or decrypt finished")
	SignalPoolClosed       = capitan.NewSignal("pool.closed", "Worker contexts stopped")
)

var (
	KeySize     = capitan.NewIntKey("size")
	KeyPath     = capitan.NewStringKey("path")
	KeyOp       = capitan.NewStringKey("op")
	KeyFormat   = capitan.NewStringKey("format")
	KeyChunks   = capitan.NewIntKey("chunks")
	KeyDuration = capitan.NewDurationKey("duration")
	KeyError    = capitan.NewErrorKey("error")
)

func emitPoolStarted(ctx context.Context, size int) {
	capitan.Emit(ctx, SignalPoolStarted, KeySize.Field(size))
}

func emitPoolClosed(ctx context.Context, size int) {
	capitan.Emit(ctx, SignalPoolClosed, KeySize.Field(size))
}

func emitOutcome(ctx context.Context, sig capitan.Signal, err error, fields ...capitan.Field) {
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, sig, fields...)
		return
	}
	capitan.Emit(ctx, sig, fields...)
}

func emitSchemaBroadcast(ctx context.Context, size int, err error) {
	emitOutcome(ctx, SignalSchemaBroadcast, err, KeySize.Field(size))
}

// path is "fast" when contexts load the key from the store, "slow" when
// every context derives it from the password.
func emitKeysBroadcast(ctx context.Context, path string, duration time.Duration, err error) {
	emitOutcome(ctx, SignalKeysBroadcast, err,
		KeyPath.Field(path),
		KeyDuration.Field(duration),
	)
}

func emitLogout(ctx context.Context, err error) {
	emitOutcome(ctx, SignalLogout, err)
}

func emitDispatchComplete(ctx context.Context, op, format string, chunks int, duration time.Duration, err error) {
	emitOutcome(ctx, SignalDispatchComplete, err,
		KeyOp.Field(op),
		KeyFormat.Field(format),
		KeyChunks.Field(chunks),
		KeyDuration.Field(duration),
	)
}

// >>>

// LogSignals forwards every pool signal to l, at DEBUG, or at WARN when the
// signal carries an error. Close the observer to stop.
func LogSignals(l logger.Logger) *capitan.Observer {
	return capitan.Observe(func(_ context.Context, e *capitan.Event) {
		level := logger.DebugLevel
		if e.Severity() == capitan.SeverityError {
			level = logger.WarnLevel
		}
		l.Log(level, "%s %s", e.Signal().Name(), formatFields(e.Fields()))
	},
		SignalPoolStarted,
		SignalSchemaBroadcast,
		SignalKeysBroadcast,
		SignalLogout,
		SignalDispatchComplete,
		SignalPoolClosed,
	)
}

// formatFields renders fields as space separated key=value pairs, sorted by
// key.
func formatFields(fields []capitan.Field) string {
	pairs := make([]string, len(fields))
	for i, f := range fields {
		pairs[i] = fmt.Sprintf("%s=%v", f.Key().Name(), f.Value())
	}
	slices.Sort(pairs)
	return strings.Join(pairs, " ")
}
