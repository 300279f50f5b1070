package cart

import (
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Action selects how an Update mutates a snapshot.
type Action string

const (
	ActionAdd         Action = "add"
	ActionSetQuantity Action = "set_quantity"
	ActionRemove      Action = "remove"
	ActionReplace     Action = "replace"
	ActionClear       Action = "clear"
)

// Update is a single cart mutation requested by the storefront.
type Update struct {
	Action   Action
	Item     *LineItem
	LineKey  string
	Quantity float64
	Items    []LineItem
}

// Apply runs the update against a copy of s and returns the result. The
// original is untouched when the update is rejected.
func Apply(s Snapshot, u Update, maxLines int) (Snapshot, error) {
	next := s.Clone()
	var err error
	switch u.Action {
	case ActionAdd:
		if u.Item == nil {
			return s, pkgerrors.New(pkgerrors.CodeValidation, "item is required")
		}
		err = next.Add(*u.Item)
	case ActionSetQuantity:
		err = next.SetQuantity(u.LineKey, u.Quantity)
	case ActionRemove:
		err = next.Remove(u.LineKey)
	case ActionReplace:
		err = next.Replace(u.Items)
	case ActionClear:
		next.Clear()
	default:
		return s, pkgerrors.New(pkgerrors.CodeValidation, "unknown cart action").
			WithDetails(map[string]any{"action": u.Action})
	}
	if err != nil {
		return s, err
	}
	if maxLines > 0 && len(next.Items) > maxLines {
		return s, pkgerrors.New(pkgerrors.CodeValidation, "cart has too many lines").
			WithDetails(map[string]any{"max_lines": maxLines})
	}
	return next, nil
}
