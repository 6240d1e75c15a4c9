package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/internal/orderview"
	"github.com/angelmondragon/roha-backend/internal/realtime"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type AdminSubscriber interface {
	SubscribeAdmin(ctx context.Context) (*realtime.Subscription, error)
}

// errStreamClosed ends the heartbeat once the live subscription is gone.
var errStreamClosed = errors.New("live subscription closed")

type liveFrame struct {
	Event       realtime.Event `json:"event"`
	UnreadCount int            `json:"unread_count"`
}

// CustomerLive streams the customer's view: a snapshot frame first, then one
// frame per effective order or notification change.
func CustomerLive(deps orderview.Deps, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		view, err := orderview.Open(ctx, deps, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer view.Close()

		stream, err := newSSEWriter(w)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := stream.send("snapshot", "", view.Snapshot()); err != nil {
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := view.Run(gctx, func(change orderview.Change) error {
				return stream.send(string(change.Event.Type), change.Event.ID, liveFrame{
					Event:       change.Event,
					UnreadCount: change.UnreadCount,
				})
			})
			if err != nil {
				return err
			}
			return errStreamClosed
		})
		g.Go(func() error {
			return stream.heartbeat(gctx, heartbeat)
		})

		logStreamEnd(ctx, logg, g.Wait())
	}
}

// AdminOrdersLive streams every order event to the console.
func AdminOrdersLive(sub AdminSubscriber, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !middleware.ActorFromContext(ctx).CanTransitionOrders() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order console requires admin"))
			return
		}
		subscription, err := sub.SubscribeAdmin(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to live updates"))
			return
		}
		defer subscription.Close()

		stream, err := newSSEWriter(w)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			events := subscription.Events()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case event, ok := <-events:
					if !ok {
						return errStreamClosed
					}
					if err := stream.send(string(event.Type), event.ID, event); err != nil {
						return err
					}
				}
			}
		})
		g.Go(func() error {
			return stream.heartbeat(gctx, heartbeat)
		})

		logStreamEnd(ctx, logg, g.Wait())
	}
}

func logStreamEnd(ctx context.Context, logg *logger.Logger, err error) {
	if logg == nil {
		return
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errStreamClosed) {
		logg.Debug(ctx, "live.stream.closed")
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), "live.stream.aborted")
}
