package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/internal/notifications"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/tracing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StatusNotifier creates the customer notification for a committed transition.
type StatusNotifier interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput) (*models.Notification, error)
}

// MenuLookup resolves catalogue lines during quoting and placement.
type MenuLookup interface {
	FindByID(ctx context.Context, id int64) (*models.MenuItem, error)
}

// Pricing holds the delivery rules applied to quotes.
type Pricing struct {
	Currency              string
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	MaxLineItems          int
}

// DefaultPricing is 50 ETB delivery, free above 500 ETB.
func DefaultPricing() Pricing {
	return Pricing{
		Currency:              "ETB",
		DeliveryFee:           decimal.NewFromInt(50),
		FreeDeliveryThreshold: decimal.NewFromInt(500),
		MaxLineItems:          50,
	}
}

// PricingFromConfig parses the configured delivery rules.
func PricingFromConfig(cfg config.OrdersConfig) (Pricing, error) {
	fee, err := cfg.DeliveryFeeAmount()
	if err != nil {
		return Pricing{}, err
	}
	threshold, err := cfg.FreeDeliveryThresholdAmount()
	if err != nil {
		return Pricing{}, err
	}
	pricing := DefaultPricing()
	pricing.DeliveryFee = fee
	pricing.FreeDeliveryThreshold = threshold
	if cfg.Currency != "" {
		pricing.Currency = cfg.Currency
	}
	if cfg.MaxLineItems > 0 {
		pricing.MaxLineItems = cfg.MaxLineItems
	}
	return pricing, nil
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outbox.Emitter
	Audit    adminlogs.Recorder
	Notifier StatusNotifier
	Menu     MenuLookup
	Pricing  Pricing
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

// Service is the order store front door and the transition engine.
type Service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	audit    adminlogs.Recorder
	notifier StatusNotifier
	menu     MenuLookup
	pricing  Pricing
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("admin log recorder required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("status notifier required")
	}
	if params.Pricing.Currency == "" {
		params.Pricing = DefaultPricing()
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		notifier: params.Notifier,
		menu:     params.Menu,
		pricing:  params.Pricing,
		metrics:  params.Metrics,
		logg:     params.Logger,
		tracer:   tracing.Tracer(),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Transition moves an order one step along the lifecycle on behalf of an
// admin, then notifies the customer. Notification failures are logged and
// never change the result.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.transition", trace.WithAttributes(
		attribute.Int64("order.id", input.OrderID),
		attribute.String("order.target_status", string(input.Target)),
	))
	defer span.End()

	order, from, err := s.transition(ctx, input)
	s.metrics.ObserveTransition(string(from), string(input.Target), transitionResult(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.previous_status", string(from)))

	s.dispatch(ctx, order, input.Notes)
	return order, nil
}

func (s *Service) transition(ctx context.Context, input TransitionInput) (*models.Order, enums.OrderStatus, error) {
	if !input.Actor.IsAuthenticated() {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !input.Actor.CanTransitionOrders() {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "order transitions require admin")
	}
	if input.OrderID <= 0 {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Target)
	}

	var (
		updated *models.Order
		from    enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		from = order.Status

		if !CanTransition(order.Status, input.Target) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", order.Status, input.Target).
				WithDetails(TransitionDetails{From: order.Status, To: input.Target, Allowed: NextStatuses(order.Status)})
		}

		now := s.now()
		processedBy := input.Actor.UserID
		notes := optionalNotes(input.Notes)
		ok, err := repo.UpdateIfVersion(ctx, order.ID, order.Version, map[string]any{
			"status":       input.Target,
			"admin_notes":  notes,
			"processed_by": processedBy,
			"processed_at": now,
			"updated_at":   now,
			"version":      gorm.Expr("version + 1"),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}

		// the pushed snapshot must match what a later fetch returns
		order, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		if err := s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    input.Actor.UserID,
			Action:     enums.AdminActionOrderStatusUpdate,
			TargetType: enums.AdminTargetOrder,
			TargetID:   adminlogs.TargetID(order.ID),
			Details: map[string]any{
				"old_status": from,
				"new_status": input.Target,
			},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatInt(order.ID, 10),
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderUpdatedEvent{
				Order:          payloads.OrderSnapshotFrom(*order),
				PreviousStatus: from,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order update")
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, from, err
	}
	return updated, from, nil
}

func (s *Service) dispatch(ctx context.Context, order *models.Order, notes string) {
	_, err := s.notifier.Dispatch(ctx, notifications.DispatchInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Notes:      notes,
	})
	if err == nil {
		return
	}
	s.metrics.IncDispatchFailure()
	logCtx := s.logg.WithOrderID(ctx, order.ID)
	logCtx = s.logg.WithField(logCtx, "status", order.Status)
	s.logg.Error(logCtx, "status notification dispatch failed", err)
}

// Place stores a customer's order as pending and queues an order_placed event.
func (s *Service) Place(ctx context.Context, input PlaceInput) (*models.Order, error) {
	if !input.Actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "please login to place an order")
	}
	name := strings.TrimSpace(input.CustomerName)
	phone := strings.TrimSpace(input.CustomerPhone)
	if name == "" || phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and phone are required")
	}

	quote, err := s.price(ctx, input.Items, true)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerID:    input.Actor.UserID,
		CustomerName:  name,
		CustomerPhone: phone,
		OrderDetails:  RenderOrderDetails(quote.Lines, input.Notes, s.pricing.Currency),
		TotalAmount:   quote.Subtotal,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.Insert(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		stored, err := repo.FindByID(ctx, inserted.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		order = stored
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatInt(order.ID, 10),
			Actor:         actorRef(input.Actor),
			Data:          payloads.OrderPlacedEvent{Order: payloads.OrderSnapshotFrom(*order)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID), "order placed")
	return order, nil
}

// Quote prices the cart. Lines that reference a menu item take the current
// catalogue name, size and price.
func (s *Service) Quote(ctx context.Context, items []LineInput) (*Quote, error) {
	return s.price(ctx, items, false)
}

// price quotes the cart. When placing against a wired catalogue every line
// must name a menu item so the client never sets its own price.
func (s *Service) price(ctx context.Context, items []LineInput, placing bool) (*Quote, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "please add items to your cart")
	}
	if s.pricing.MaxLineItems > 0 && len(items) > s.pricing.MaxLineItems {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cart may hold at most %d lines", s.pricing.MaxLineItems)
	}

	quote := &Quote{Lines: make([]QuoteLine, 0, len(items)), Subtotal: decimal.Zero, Currency: s.pricing.Currency}
	for i, item := range items {
		line, err := s.resolveLine(ctx, item, placing && s.menu != nil)
		if err != nil {
			return nil, pkgerrors.As(err).WithDetails(map[string]int{"line": i})
		}
		quote.Lines = append(quote.Lines, line)
		quote.Subtotal = quote.Subtotal.Add(line.LineTotal)
	}

	quote.DeliveryFee = s.pricing.DeliveryFee
	if quote.Subtotal.GreaterThan(s.pricing.FreeDeliveryThreshold) {
		quote.DeliveryFee = decimal.Zero
		quote.FreeDelivery = true
	}
	quote.Total = quote.Subtotal.Add(quote.DeliveryFee)
	return quote, nil
}

func (s *Service) resolveLine(ctx context.Context, item LineInput, requireMenuItem bool) (QuoteLine, error) {
	if item.Quantity <= 0 {
		return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if requireMenuItem && item.MenuItemID == nil {
		return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "menu item required")
	}

	line := QuoteLine{
		MenuItemID: item.MenuItemID,
		Name:       strings.TrimSpace(item.Name),
		Size:       strings.TrimSpace(item.Size),
		UnitPrice:  item.Price,
		Quantity:   item.Quantity,
	}
	if item.MenuItemID != nil && s.menu != nil {
		menuItem, err := s.menu.FindByID(ctx, *item.MenuItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "menu item not found")
			}
			return QuoteLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
		}
		if !menuItem.Available {
			return QuoteLine{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not available", menuItem.Name)
		}
		line.Name = menuItem.Name
		line.Size = menuItem.Size
		line.UnitPrice = menuItem.Price
	}

	if line.Name == "" {
		return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	if line.UnitPrice.IsNegative() {
		return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if !line.UnitPrice.Equal(line.UnitPrice.Round(2)) {
		return QuoteLine{}, pkgerrors.New(pkgerrors.CodeValidation, "price may have at most 2 decimal places")
	}
	line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return line, nil
}

// RenderOrderDetails freezes the cart into the order's free-text details.
func RenderOrderDetails(lines []QuoteLine, notes, currency string) string {
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		rendered = append(rendered, fmt.Sprintf("%s (%s) x%d - %s %s",
			line.Name, line.Size, line.Quantity, line.LineTotal.String(), currency))
	}
	return strings.Join(rendered, "\n") + "\n\nAdditional Details:\n" + strings.TrimSpace(notes)
}

// Get returns one order if the actor may see it.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	// other customers' orders are reported as missing
	if !actor.CanViewOrdersOf(order.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// ListForCustomer returns the actor's own orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	orders, err := s.repo.ListByCustomer(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

// ListAll returns every order, optionally filtered by status, for admins.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor, status *enums.OrderStatus) ([]models.Order, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.CanTransitionOrders() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order console requires admin")
	}
	orders, err := s.repo.ListAll(ctx, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func transitionResult(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeInvalidTransition:
		return metrics.ResultRejected
	case pkgerrors.CodeConflict:
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

func optionalNotes(notes string) *string {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

// Stats summarises the order book for the admin dashboard.
func (s *Service) Stats(ctx context.Context, actor auth.Actor) (*Stats, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dashboard requires admin")
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order stats")
	}
	return stats, nil
}

// CountStalePending counts orders still pending after maxAge.
func (s *Service) CountStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	count, err := s.repo.CountPendingBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	s.metrics.SetStalePending(count)
	return count, nil
}
