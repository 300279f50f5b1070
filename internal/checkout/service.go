package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/recovery"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/internal/sidetasks"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultEmailTimeout   = 5 * time.Second
	defaultPersistTimeout = 45 * time.Second
	// recoveryWriteTimeout bounds the local recovery write, which gets its
	// own budget after the persist budget is spent.
	recoveryWriteTimeout = 5 * time.Second

	taskCouponUsage = "coupon_usage"
	taskAnalytics   = "analytics"
	taskOrderEvent  = "order_event"
)

type couponResolver interface {
	Resolve(ctx context.Context, code string) (coupons.Coupon, error)
	RecordUsage(ctx context.Context, couponID string) error
}

type paymentSession interface {
	CreateOrder(ctx context.Context, snapshot cart.Snapshot, totals pricing.Totals, reference, invoiceID string) (string, error)
	Capture(ctx context.Context, providerOrderID, owner string) (payments.Capture, error)
}

type orderPersister interface {
	Save(ctx context.Context, order orders.Order) (string, error)
}

type recoveryLog interface {
	RecordOrderSaveFailure(ctx context.Context, order orders.Order, cause error) (recovery.Record, error)
	RecordCaptureFailure(ctx context.Context, checkoutID, providerOrderID string, cause error) (recovery.Record, error)
}

type cartStore interface {
	Save(ctx context.Context, checkoutID uuid.UUID, snapshot cart.Snapshot) error
	Load(ctx context.Context, checkoutID uuid.UUID) (cart.Snapshot, error)
	Delete(ctx context.Context, checkoutID uuid.UUID) error
}

type taskRunner interface {
	Go(ctx context.Context, name string, fn sidetasks.Task)
}

type transitionMetrics interface {
	ObserveTransition(from, to string)
}

// Deps are the collaborators of the checkout service.
type Deps struct {
	Store     Store
	Carts     cartStore
	Coupons   couponResolver
	Payments  paymentSession
	Persister orderPersister
	Recovery  recoveryLog
	Mailer    notifications.ConfirmationSender
	Tracker   analytics.Tracker
	Events    EventPublisher
	Tasks     taskRunner
	Metrics   transitionMetrics
	Logger    *logger.Logger
}

// Options tune checkout behavior.
type Options struct {
	Currency           string
	MaxCartLines       int
	EmailTimeout       time.Duration
	PersistTimeout     time.Duration
	SupportEmail       string
	AllowFieldOverride bool
}

// BeginInput starts a checkout. When Items is empty and ResumeFrom names an
// earlier checkout, its saved cart is restored.
type BeginInput struct {
	Items      []cart.LineItem
	Shipping   shipping.Address
	ResumeFrom string
}

// MissingFieldsInput completes the shipping contact after capture. Override
// proceeds with gaps and is honoured only when enabled in Options.
type MissingFieldsInput struct {
	Shipping shipping.Address
	Override bool
}

// Service is the checkout state machine. Each exported method is the
// dispatch for one external event.
type Service struct {
	store     Store
	carts     cartStore
	coupons   couponResolver
	payments  paymentSession
	persister orderPersister
	recovery  recoveryLog
	mailer    notifications.ConfirmationSender
	tracker   analytics.Tracker
	events    EventPublisher
	tasks     taskRunner
	metrics   transitionMetrics
	logg      *logger.Logger
	opts      Options
	locks     *keyedMutex
	now       func() time.Time
}

// NewService wires the checkout service.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("checkout store required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart store required")
	case deps.Coupons == nil:
		return nil, fmt.Errorf("coupon resolver required")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payment session required")
	case deps.Persister == nil:
		return nil, fmt.Errorf("order persister required")
	case deps.Recovery == nil:
		return nil, fmt.Errorf("recovery log required")
	case deps.Mailer == nil:
		return nil, fmt.Errorf("confirmation sender required")
	case deps.Tasks == nil:
		return nil, fmt.Errorf("side task runner required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if deps.Tracker == nil {
		deps.Tracker = analytics.NoopTracker{}
	}
	if deps.Events == nil {
		deps.Events = NoopEventPublisher{}
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = defaultEmailTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	opts.Currency = strings.ToUpper(strings.TrimSpace(opts.Currency))
	if opts.Currency == "" {
		opts.Currency = enums.CurrencyUSD.String()
	}
	return &Service{
		store:     deps.Store,
		carts:     deps.Carts,
		coupons:   deps.Coupons,
		payments:  deps.Payments,
		persister: deps.Persister,
		recovery:  deps.Recovery,
		mailer:    deps.Mailer,
		tracker:   deps.Tracker,
		events:    deps.Events,
		tasks:     deps.Tasks,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		opts:      opts,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Begin creates a checkout. A non-empty cart moves straight to
// awaiting_payment; an empty one stays idle.
func (s *Service) Begin(ctx context.Context, in BeginInput) (*Context, error) {
	snapshot, err := cart.Apply(cart.Snapshot{}, cart.Update{Action: cart.ActionReplace, Items: in.Items}, s.opts.MaxCartLines)
	if err != nil {
		return nil, err
	}
	if snapshot.IsEmpty() && strings.TrimSpace(in.ResumeFrom) != "" {
		snapshot, err = s.resumeCart(ctx, in.ResumeFrom)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	c := &Context{
		ID:        uuid.New(),
		State:     enums.CheckoutStateIdle,
		Cart:      snapshot,
		Shipping:  shipping.Merge(in.Shipping, shipping.Address{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.reprice()
	ctx = s.logg.WithCheckoutID(ctx, c.ID.String())

	if !c.Cart.IsEmpty() {
		if err := s.transition(ctx, c, enums.CheckoutStateAwaitingPayment); err != nil {
			return nil, err
		}
	}
	if err := s.carts.Save(ctx, c.ID, c.Cart); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "checkout started")
	s.track(ctx, c, analytics.EventCheckoutStarted, nil)
	return c, nil
}

func (s *Service) resumeCart(ctx context.Context, previous string) (cart.Snapshot, error) {
	id, err := uuid.Parse(strings.TrimSpace(previous))
	if err != nil {
		return cart.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout id to resume")
	}
	snapshot, err := s.carts.Load(ctx, id)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return cart.Snapshot{}, nil
		}
		return cart.Snapshot{}, err
	}
	return snapshot, nil
}

// Currency is the ISO code every checkout is priced in.
func (s *Service) Currency() string {
	return s.opts.Currency
}

// Get returns the stored checkout.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Context, error) {
	return s.store.Load(ctx, id)
}

// UpdateCart mutates the cart before a payment order exists.
func (s *Service) UpdateCart(ctx context.Context, id uuid.UUID, update cart.Update) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		if err := s.requireOpenCart(c, "cart update"); err != nil {
			return err
		}
		next, err := cart.Apply(c.Cart, update, s.opts.MaxCartLines)
		if err != nil {
			return err
		}
		c.Cart = next
		c.reprice()
		if err := s.carts.Save(ctx, c.ID, c.Cart); err != nil {
			return err
		}
		return s.syncCartState(ctx, c)
	})
}

// ApplyCoupon resolves code and reprices. Only one coupon may be applied;
// applying a different one requires removing the current one first.
func (s *Service) ApplyCoupon(ctx context.Context, id uuid.UUID, code string) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		if err := s.requireOpenCart(c, "coupon change"); err != nil {
			return err
		}
		normalized := coupons.NormalizeCode(code)
		if c.AppliedCoupon != nil {
			if c.AppliedCoupon.Code == normalized {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "remove the applied coupon before applying another").
				WithDetails(map[string]any{"applied": c.AppliedCoupon.Code})
		}
		coupon, err := s.coupons.Resolve(ctx, code)
		if err != nil {
			return err
		}
		c.AppliedCoupon = &coupon
		c.reprice()
		return nil
	})
}

// RemoveCoupon clears the applied coupon and reprices.
func (s *Service) RemoveCoupon(ctx context.Context, id uuid.UUID) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		if err := s.requireOpenCart(c, "coupon change"); err != nil {
			return err
		}
		c.AppliedCoupon = nil
		c.reprice()
		return nil
	})
}

// UpdateShipping records user-entered shipping fields. Before capture the
// fields are stored as entered; while fields are missing after capture it
// behaves like SupplyMissingFields.
func (s *Service) UpdateShipping(ctx context.Context, id uuid.UUID, patch shipping.Address) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		switch {
		case c.State == enums.CheckoutStateAwaitingMissingFields:
			return s.supplyMissing(ctx, c, MissingFieldsInput{Shipping: patch})
		case c.State.IsTerminal() || c.PaymentTaken():
			return stateConflict(c, "shipping update")
		}
		c.Shipping = shipping.Overlay(c.Shipping, patch)
		return nil
	})
}

// CreatePaymentOrder opens a provider order for the current totals. It may
// be called repeatedly; every id is remembered but only one can be captured.
func (s *Service) CreatePaymentOrder(ctx context.Context, id uuid.UUID) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		if c.State != enums.CheckoutStateIdle && c.State != enums.CheckoutStateAwaitingPayment {
			return stateConflict(c, "payment order creation")
		}
		c.reprice()
		invoiceID := fmt.Sprintf("%s-%d", c.ID, len(c.ProviderOrderIDs)+1)
		providerOrderID, err := s.payments.CreateOrder(ctx, c.Cart, c.Totals, c.ID.String(), invoiceID)
		if err != nil {
			return err
		}
		c.ProviderOrderID = providerOrderID
		c.ProviderOrderIDs = append(c.ProviderOrderIDs, providerOrderID)
		s.logg.Info(s.logg.WithProviderOrderID(ctx, providerOrderID), "payment order created")
		s.track(ctx, c, analytics.EventPaymentCreated, nil)
		return nil
	})
}

// ApprovePayment captures the approved provider order exactly once, merges
// the payer's shipping and either pauses for missing fields or persists.
func (s *Service) ApprovePayment(ctx context.Context, id uuid.UUID, providerOrderID string) (*Context, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		ctx = s.logg.WithProviderOrderID(ctx, providerOrderID)
		if c.PaymentTaken() {
			return pkgerrors.New(pkgerrors.CodeCaptureAttempted, "payment capture already attempted").
				WithDetails(map[string]any{"provider_order_id": c.ProviderOrderID, "state": c.State})
		}
		if c.State != enums.CheckoutStateAwaitingPayment {
			return stateConflict(c, "payment approval")
		}
		if !c.OwnsProviderOrder(providerOrderID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment order does not belong to this checkout").
				WithDetails(map[string]any{"provider_order_id": providerOrderID})
		}

		// Persist the latch before the provider call so a crash cannot lead
		// to a second capture on reload.
		c.CaptureLatched = true
		c.ProviderOrderID = providerOrderID
		c.UpdatedAt = s.now()
		if err := s.store.Save(ctx, c); err != nil {
			c.CaptureLatched = false
			return err
		}

		capture, err := s.payments.Capture(context.WithoutCancel(ctx), providerOrderID, c.ID.String())
		if err != nil {
			return s.captureFailed(ctx, c, err)
		}
		if !capture.CapturedAmount.IsZero() && !capture.CapturedAmount.Equal(c.Totals.FinalAmount) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"captured_amount": capture.CapturedAmount.String(),
				"final_amount":    c.Totals.FinalAmount.String(),
			}), "captured amount differs from priced total")
		}

		c.Capture = &capture
		if err := s.transition(ctx, c, enums.CheckoutStatePaymentCaptured); err != nil {
			return err
		}
		c.Shipping = shipping.Merge(c.Shipping, capture.PayerShipping)
		c.MissingFields = shipping.ComputeMissing(c.Shipping)
		s.track(ctx, c, analytics.EventPaymentCaptured, nil)

		if len(c.MissingFields) > 0 {
			s.logg.Info(s.logg.WithField(ctx, "missing_fields", c.MissingFields), "waiting for missing shipping fields")
			return s.transition(ctx, c, enums.CheckoutStateAwaitingMissingFields)
		}
		return s.persist(ctx, c)
	})
}

// SupplyMissingFields completes the shipping contact after capture.
func (s *Service) SupplyMissingFields(ctx context.Context, id uuid.UUID, in MissingFieldsInput) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		if c.State != enums.CheckoutStateAwaitingMissingFields {
			return stateConflict(c, "missing fields submission")
		}
		return s.supplyMissing(ctx, c, in)
	})
}

func (s *Service) supplyMissing(ctx context.Context, c *Context, in MissingFieldsInput) error {
	c.Shipping = shipping.Overlay(c.Shipping, in.Shipping)
	c.MissingFields = shipping.ComputeMissing(c.Shipping)
	if len(c.MissingFields) > 0 {
		if !in.Override || !s.opts.AllowFieldOverride {
			// Keep what was supplied so far; the caller gets the remaining gaps.
			if err := s.store.Save(ctx, c); err != nil {
				return err
			}
			return shipping.Validate(c.Shipping)
		}
		s.logg.Warn(s.logg.WithField(ctx, "missing_fields", c.MissingFields), "persisting with missing shipping fields by override")
	}
	return s.persist(ctx, c)
}

// CancelPayment handles the widget cancel callback. Only allowed before
// capture; the context is discarded and the cart kept for a restart. The
// returned context shows the failure and is no longer stored.
func (s *Service) CancelPayment(ctx context.Context, id uuid.UUID) (*Context, error) {
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		return s.failBeforeCapture(ctx, c, enums.FailureKindPaymentCancelled, "payment was cancelled")
	})
}

// ReportPaymentError handles the widget error callback, including a payment
// SDK that failed to load in time.
func (s *Service) ReportPaymentError(ctx context.Context, id uuid.UUID, kind, message string) (*Context, error) {
	failure := enums.FailureKindPaymentError
	switch parsed, err := enums.ParseFailureKind(strings.TrimSpace(kind)); {
	case err != nil:
	case parsed == enums.FailureKindSDKTimeout, parsed == enums.FailureKindPaymentCancelled:
		failure = parsed
	}
	if strings.TrimSpace(message) == "" {
		message = "payment could not be completed"
	}
	return s.dispatch(ctx, id, func(ctx context.Context, c *Context) error {
		return s.failBeforeCapture(ctx, c, failure, message)
	})
}

// Abandon deletes a checkout that never took payment.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()
	ctx = s.logg.WithCheckoutID(ctx, id.String())

	c, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if c.PaymentTaken() {
		return stateConflict(c, "abandon")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, id); err != nil {
		s.logg.Error(ctx, "failed to delete abandoned cart", err)
	}
	s.logg.Info(ctx, "checkout abandoned")
	return nil
}

// dispatch serialises events per checkout, runs fn against the loaded
// context and stores the result. The context is stored even when fn fails so
// progress made before the failure is kept, unless fn discarded it.
func (s *Service) dispatch(ctx context.Context, id uuid.UUID, fn func(context.Context, *Context) error) (*Context, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()
	ctx = s.logg.WithCheckoutID(ctx, id.String())

	c, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	before := *c
	fnErr := fn(ctx, c)
	var discarded *discardedError
	if errors.As(fnErr, &discarded) {
		return c, discarded.err
	}
	if fnErr != nil && !c.changedSince(&before) {
		return c, fnErr
	}
	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, c); err != nil {
		if fnErr != nil {
			s.logg.Error(ctx, "failed to store checkout after error", err)
			return c, fnErr
		}
		return c, err
	}
	return c, fnErr
}

// discardedError marks a checkout that was deleted from the store during
// dispatch. err is what the caller receives, nil for acknowledged callbacks.
type discardedError struct {
	err error
}

func (e *discardedError) Error() string {
	if e.err == nil {
		return "checkout discarded"
	}
	return e.err.Error()
}

func (c *Context) changedSince(before *Context) bool {
	return c.State != before.State ||
		c.CaptureLatched != before.CaptureLatched ||
		c.Capture != before.Capture ||
		c.Failure != before.Failure ||
		c.Outcome != before.Outcome
}

func (s *Service) requireOpenCart(c *Context, action string) error {
	if c.State != enums.CheckoutStateIdle && c.State != enums.CheckoutStateAwaitingPayment {
		return stateConflict(c, action)
	}
	if c.PaymentOpened() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is locked once a payment order exists").
			WithDetails(map[string]any{"action": action, "provider_order_id": c.ProviderOrderID})
	}
	return nil
}

func (s *Service) syncCartState(ctx context.Context, c *Context) error {
	switch {
	case c.State == enums.CheckoutStateIdle && !c.Cart.IsEmpty():
		return s.transition(ctx, c, enums.CheckoutStateAwaitingPayment)
	case c.State == enums.CheckoutStateAwaitingPayment && c.Cart.IsEmpty():
		return s.transition(ctx, c, enums.CheckoutStateIdle)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, c *Context, to enums.CheckoutState) error {
	from := c.State
	if !CanTransition(from, to) {
		return transitionError(from, to)
	}
	c.State = to
	c.UpdatedAt = s.now()
	if s.metrics != nil {
		s.metrics.ObserveTransition(from.String(), to.String())
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from.String(), "to": to.String()}), "checkout transition")
	return nil
}

// failBeforeCapture ends a checkout that has not taken payment. The context
// is deleted and the cart kept so the user can restart.
func (s *Service) failBeforeCapture(ctx context.Context, c *Context, kind enums.FailureKind, message string) error {
	if c.PaymentTaken() {
		return stateConflict(c, "payment failure report")
	}
	if err := s.transition(ctx, c, enums.CheckoutStateFailed); err != nil {
		return err
	}
	c.Failure = &Failure{
		Kind:            kind,
		Message:         message,
		ProviderOrderID: c.ProviderOrderID,
		At:              s.now(),
	}
	s.discard(ctx, c)
	s.track(ctx, c, analytics.EventCheckoutFailed, map[string]any{"failure_kind": kind})
	return &discardedError{}
}

func (s *Service) discard(ctx context.Context, c *Context) {
	if err := s.store.Delete(ctx, c.ID); err != nil {
		s.logg.Error(ctx, "failed to discard checkout", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "failure_kind", c.Failure.Kind.String()), "checkout discarded")
}

// captureFailed handles an unsuccessful capture call. A duplicate capture or
// an unreachable latch leaves the checkout as it was; a provider failure
// means no funds moved, so the checkout is discarded after a breadcrumb is
// written.
func (s *Service) captureFailed(ctx context.Context, c *Context, err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeCaptureAttempted:
		return err
	case pkgerrors.CodeServiceUnavailable, pkgerrors.CodeValidation:
		// Nothing reached the provider, so the checkout may try again.
		c.CaptureLatched = false
		if saveErr := s.store.Save(ctx, c); saveErr != nil {
			s.logg.Error(ctx, "failed to release capture latch", saveErr)
		}
		return err
	}

	s.logg.Error(ctx, "payment capture failed", err)
	supportRef := c.ProviderOrderID
	if record, recErr := s.recovery.RecordCaptureFailure(ctx, c.ID.String(), c.ProviderOrderID, err); recErr != nil {
		s.logg.Error(ctx, "failed to write capture failure breadcrumb", recErr)
	} else {
		supportRef = record.ID.String()
	}

	if tErr := s.transition(ctx, c, enums.CheckoutStateFailed); tErr != nil {
		return tErr
	}
	c.Failure = &Failure{
		Kind: enums.FailureKindCaptureFailed,
		Message: fmt.Sprintf("Your payment could not be captured. No funds were taken. If you contact support, mention PayPal order %s.",
			c.ProviderOrderID),
		ProviderOrderID:  c.ProviderOrderID,
		SupportReference: supportRef,
		At:               s.now(),
	}
	s.discard(ctx, c)
	s.track(ctx, c, analytics.EventCheckoutFailed, map[string]any{"failure_kind": enums.FailureKindCaptureFailed})

	details := map[string]any{
		"provider_order_id": c.ProviderOrderID,
		"support_reference": supportRef,
		"restart":           true,
	}
	if typed := pkgerrors.As(err); typed != nil {
		if inner, ok := typed.Details().(map[string]any); ok {
			if provider, ok := inner["provider"]; ok {
				details["provider"] = provider
			}
		}
	}
	return &discardedError{err: pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, c.Failure.Message).WithDetails(details)}
}

// persist saves the order. It runs detached from the caller's cancellation
// because payment has already been taken.
func (s *Service) persist(ctx context.Context, c *Context) error {
	if err := s.transition(ctx, c, enums.CheckoutStatePersisting); err != nil {
		return err
	}
	if err := s.store.Save(ctx, c); err != nil {
		s.logg.Error(ctx, "failed to store checkout before persisting order", err)
	}

	detached := context.WithoutCancel(ctx)
	persistCtx, cancel := context.WithTimeout(detached, s.opts.PersistTimeout)
	order := s.orderFor(c)
	orderID, err := s.persister.Save(persistCtx, order)
	cancel()
	if err != nil {
		recordCtx, cancelRecord := context.WithTimeout(detached, recoveryWriteTimeout)
		defer cancelRecord()
		return s.orderSaveFailed(recordCtx, c, order, err)
	}
	order.ID = orderID
	return s.complete(detached, c, order)
}

func (s *Service) orderFor(c *Context) orders.Order {
	order := orders.Order{
		CheckoutID:      c.ID.String(),
		Items:           c.Cart.Clone().Items,
		Subtotal:        c.Totals.Subtotal,
		DiscountAmount:  c.Totals.DiscountAmount,
		FinalAmount:     c.Totals.FinalAmount,
		Currency:        s.opts.Currency,
		Shipping:        c.Shipping,
		ProviderOrderID: c.ProviderOrderID,
	}
	if c.Capture != nil {
		order.TransactionID = c.Capture.TransactionID
		if c.Capture.Currency != "" {
			order.Currency = c.Capture.Currency
		}
	}
	if order.TransactionID == "" {
		order.TransactionID = c.ProviderOrderID
	}
	if c.AppliedCoupon != nil {
		order.CouponID = c.AppliedCoupon.ID
		order.CouponCode = c.AppliedCoupon.Code
	}
	return order
}

// orderSaveFailed records the paid-but-unsaved order locally and fails the
// checkout with a message naming the provider order.
func (s *Service) orderSaveFailed(ctx context.Context, c *Context, order orders.Order, cause error) error {
	s.logg.Error(ctx, "order could not be saved after payment", cause)

	supportRef := c.ProviderOrderID
	record, recErr := s.recovery.RecordOrderSaveFailure(ctx, order, cause)
	if recErr != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": order.TransactionID,
			"final_amount":   order.FinalAmount.String(),
			"email":          order.Shipping.Email,
		}), "recovery record could not be written", recErr)
	} else {
		supportRef = record.ID.String()
	}

	if err := s.transition(ctx, c, enums.CheckoutStateFailed); err != nil {
		return err
	}
	c.Failure = &Failure{
		Kind: enums.FailureKindOrderSaveFailed,
		Message: fmt.Sprintf("Your payment was received but we could not save your order. Please contact support with PayPal order %s (reference %s).",
			c.ProviderOrderID, supportRef),
		ProviderOrderID:  c.ProviderOrderID,
		SupportReference: supportRef,
		At:               s.now(),
	}
	s.track(ctx, c, analytics.EventCheckoutFailed, map[string]any{"failure_kind": enums.FailureKindOrderSaveFailed})

	details := map[string]any{
		"provider_order_id": c.ProviderOrderID,
		"transaction_id":    order.TransactionID,
		"support_reference": supportRef,
	}
	if typed := pkgerrors.As(cause); typed != nil {
		if inner, ok := typed.Details().(map[string]any); ok {
			for _, key := range []string{"attempts", "retryable"} {
				if v, ok := inner[key]; ok {
					details[key] = v
				}
			}
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeOrderSaveFailed, cause, c.Failure.Message).WithDetails(details)
}

func (s *Service) complete(ctx context.Context, c *Context, order orders.Order) error {
	if err := s.transition(ctx, c, enums.CheckoutStateCompleted); err != nil {
		return err
	}
	ctx = s.logg.WithField(ctx, "order_id", order.ID)

	emailFailed := false
	emailCtx, cancel := context.WithTimeout(ctx, s.opts.EmailTimeout)
	err := s.mailer.SendOrderConfirmation(emailCtx, notifications.Confirmation{
		OrderID:         order.ID,
		ProviderOrderID: order.ProviderOrderID,
		Currency:        order.Currency,
		Items:           order.Items,
		Subtotal:        order.Subtotal,
		DiscountAmount:  order.DiscountAmount,
		FinalAmount:     order.FinalAmount,
		CouponCode:      order.CouponCode,
		Shipping:        order.Shipping,
		SupportEmail:    s.opts.SupportEmail,
	})
	cancel()
	if err != nil {
		emailFailed = true
		s.logg.Error(ctx, "confirmation email failed", err)
	}

	c.Outcome = &Outcome{
		OrderID:         order.ID,
		ProviderOrderID: order.ProviderOrderID,
		TransactionID:   order.TransactionID,
		FinalAmount:     order.FinalAmount,
		DiscountAmount:  order.DiscountAmount,
		Currency:        order.Currency,
		EmailFailed:     emailFailed,
		CompletedAt:     s.now(),
	}
	c.MissingFields = nil
	c.Cart.Clear()
	if err := s.carts.Delete(ctx, c.ID); err != nil {
		s.logg.Error(ctx, "failed to clear cart", err)
	}
	s.logg.Info(ctx, "checkout completed")
	s.afterCompletion(ctx, c, order)
	return nil
}

func (s *Service) afterCompletion(ctx context.Context, c *Context, order orders.Order) {
	if c.AppliedCoupon != nil && c.AppliedCoupon.ID != "" {
		couponID := c.AppliedCoupon.ID
		s.tasks.Go(ctx, taskCouponUsage, func(ctx context.Context) error {
			return s.coupons.RecordUsage(ctx, couponID)
		})
	}

	s.track(ctx, c, analytics.EventOrderCompleted, map[string]any{"email_failed": c.Outcome.EmailFailed})

	event := OrderCompletedEvent{
		CheckoutID:      c.ID.String(),
		OrderID:         order.ID,
		ProviderOrderID: order.ProviderOrderID,
		TransactionID:   order.TransactionID,
		Currency:        order.Currency,
		SubtotalCents:   pricing.ToCents(order.Subtotal),
		DiscountCents:   pricing.ToCents(order.DiscountAmount),
		TotalCents:      pricing.ToCents(order.FinalAmount),
		CouponCode:      order.CouponCode,
		ItemCount:       cart.Snapshot{Items: order.Items}.ItemCount(),
		EmailFailed:     c.Outcome.EmailFailed,
	}
	s.tasks.Go(ctx, taskOrderEvent, func(ctx context.Context) error {
		return s.events.PublishOrderCompleted(ctx, event)
	})
}

func (s *Service) track(ctx context.Context, c *Context, eventType analytics.EventType, payload map[string]any) {
	event := analytics.Event{
		Type:            eventType,
		CheckoutID:      c.ID.String(),
		ProviderOrderID: c.ProviderOrderID,
		State:           c.State.String(),
		SubtotalCents:   pricing.ToCents(c.Totals.Subtotal),
		DiscountCents:   pricing.ToCents(c.Totals.DiscountAmount),
		TotalCents:      pricing.ToCents(c.Totals.FinalAmount),
		Payload:         payload,
		OccurredAt:      s.now(),
	}
	if c.AppliedCoupon != nil {
		event.CouponCode = c.AppliedCoupon.Code
	}
	if c.Outcome != nil {
		event.OrderID = c.Outcome.OrderID
	}
	if c.Failure != nil {
		event.FailureKind = c.Failure.Kind.String()
	}
	s.tasks.Go(ctx, taskAnalytics, func(ctx context.Context) error {
		return s.tracker.Track(ctx, event)
	})
}
