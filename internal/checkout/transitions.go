package checkout

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var allowedTransitions = map[enums.CheckoutState][]enums.CheckoutState{
	enums.CheckoutStateIdle: {
		enums.CheckoutStateAwaitingPayment,
		enums.CheckoutStateFailed,
	},
	enums.CheckoutStateAwaitingPayment: {
		enums.CheckoutStateIdle,
		enums.CheckoutStatePaymentCaptured,
		enums.CheckoutStateFailed,
	},
	enums.CheckoutStatePaymentCaptured: {
		enums.CheckoutStateAwaitingMissingFields,
		enums.CheckoutStatePersisting,
	},
	enums.CheckoutStateAwaitingMissingFields: {
		enums.CheckoutStatePersisting,
	},
	enums.CheckoutStatePersisting: {
		enums.CheckoutStateCompleted,
		enums.CheckoutStateFailed,
	},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to enums.CheckoutState) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func transitionError(from, to enums.CheckoutState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout cannot move to "+to.String()).
		WithDetails(map[string]any{"from": from, "to": to})
}

func stateConflict(c *Context, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, action+" is not allowed in state "+c.State.String()).
		WithDetails(map[string]any{"state": c.State, "action": action})
}
