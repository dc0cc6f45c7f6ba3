package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"go-storefront-session/internal/event"
	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

func (s *Service) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cart-sync",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Rejections the backend answered deliberately say nothing about
		// its health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *apierror.APIError
			return errors.As(err, &apiErr) && apiErr.HTTPStatus < http.StatusInternalServerError &&
				apiErr.HTTPStatus != http.StatusTooManyRequests
		},
	})
}

func (s *Service) putCart(ctx context.Context, items []model.CartItem) error {
	lines := make([]model.CartLine, len(items))
	for i, item := range items {
		lines[i] = model.CartLine{ProductID: item.Product.ID, Quantity: item.Quantity}
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.api.PutCart(ctx, lines)
	})
	return err
}

func (s *Service) getCart(ctx context.Context) ([]model.CartItem, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.api.GetCart(ctx)
	})
	if err != nil {
		return nil, err
	}

	data := res.(model.CartData)
	items := make([]model.CartItem, 0, len(data.Items))
	for _, line := range data.Items {
		if line.Product.ID == "" || line.Quantity < 1 {
			continue
		}
		items = append(items, line.CartItem())
	}

	return items, nil
}

// sync pushes the whole signed-in cart. Failures leave the local copy as
// is. Before the server cart is loaded it fetches instead, since pushing
// then would replace lines the backend already holds.
func (s *Service) sync(ctx context.Context) {
	user := s.session.CurrentUser()
	if user == nil || !s.session.IsAuthenticated() {
		return
	}

	s.mu.Lock()
	loaded := s.loadedFor == user.ID
	items := cloneItems(s.items.Get())
	covered := len(s.pending)
	s.mu.Unlock()

	if !loaded {
		s.reload(ctx, user.ID)
		return
	}

	if err := s.putCart(ctx, items); err != nil {
		s.log.Warn("cart sync failed", "items", len(items), "error", err)
		s.publish(event.TypeCartSyncFailed, user.ID, map[string]any{"reason": "sync", "error": err.Error()})
		return
	}

	s.mu.Lock()
	s.pending = s.pending[min(covered, len(s.pending)):]
	s.mu.Unlock()

	s.log.Debug("cart synced", "items", len(items))
	s.publish(event.TypeCartSynced, user.ID, map[string]any{"items": len(items)})
}

// loginTransition merges a non-empty guest cart into the server cart once,
// then loads the server cart. The guest cart is only cleared after the
// backend accepted it.
func (s *Service) loginTransition(ctx context.Context, userID string) {
	if !s.stillSignedIn(userID) {
		return
	}
	s.forgetOtherUsers(userID)

	guest := model.CartItems(s.local.Cart(ctx))
	if len(guest) > 0 {
		if err := s.putCart(ctx, guest); err != nil {
			s.log.Error("cart merge failed", "user_id", userID, "items", len(guest), "error", err)
			s.publish(event.TypeCartSyncFailed, userID, map[string]any{"reason": "login merge", "error": err.Error()})
		} else {
			s.local.Clear(ctx)
			s.log.Info("guest cart merged", "user_id", userID, "items", len(guest))
			s.publish(event.TypeCartMerged, userID, map[string]any{"items": len(guest)})
		}
	}

	s.reload(ctx, userID)
}

// logoutTransition drops the signed-in mirror and shows the guest cart again.
func (s *Service) logoutTransition(ctx context.Context) {
	if s.session.IsAuthenticated() {
		return
	}

	s.local.ClearMirror(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedFor = ""
	s.pending = nil
	s.items.Set(model.CartItems(s.local.Cart(ctx)))
}

// reload replaces the signed-in cart with the backend's copy, or the local
// mirror when the backend is unreachable and nothing was loaded yet.
// Unconfirmed edits are replayed on top of whichever base is used. Results
// for a session that ended meanwhile are dropped.
func (s *Service) reload(ctx context.Context, userID string) {
	fetched, err := s.getCart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stillSignedIn(userID) {
		s.log.Debug("dropping cart for ended session", "user_id", userID)
		return
	}

	changes := make([]func([]model.CartItem) []model.CartItem, 0, len(s.pending))
	for _, change := range s.pending {
		if change.userID == userID {
			changes = append(changes, change.apply)
		}
	}

	if err != nil {
		if s.loadedFor == userID {
			s.log.Warn("cart fetch failed, keeping current cart", "user_id", userID, "error", err)
			return
		}
		s.log.Warn("cart fetch failed, using local mirror", "user_id", userID, "error", err)
		mirror, _ := s.local.LoadMirror(ctx, userID)
		s.items.Set(apply(mirror, changes...))
		return
	}

	items := apply(fetched, changes...)
	s.loadedFor = userID
	s.items.Set(items)
	s.local.SaveMirror(ctx, userID, items)

	if len(changes) > 0 {
		s.worker.enqueueOnce(jobSync, s.sync)
	}
}

// forgetOtherUsers drops state left behind by a previous signed-in user.
func (s *Service) forgetOtherUsers(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadedFor != userID {
		s.loadedFor = ""
	}
	kept := s.pending[:0]
	for _, change := range s.pending {
		if change.userID == userID {
			kept = append(kept, change)
		}
	}
	s.pending = kept
}

func (s *Service) stillSignedIn(userID string) bool {
	user := s.session.CurrentUser()
	return user != nil && user.ID == userID && s.session.IsAuthenticated()
}

func (s *Service) publish(kind event.Type, userID string, payload any) {
	s.bus.Publish(event.Event{Type: kind, UserID: userID, Payload: payload})
}
