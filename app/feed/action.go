package feed

import (
	"errors"
	"fmt"
)

// Action is the kind of change an Update carries.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionUpdate
	ActionDelete
)

var ErrUnknownAction = errors.New("unknown feed action")

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return []byte(a.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
}

func (a *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "create":
		*a = ActionCreate
	case "update":
		*a = ActionUpdate
	case "delete":
		*a = ActionDelete
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, text)
	}
	return nil
}

// Update is one change notification: a full snapshot of the item and what
// happened to it. Items are never mutated after publication.
type Update[T any] struct {
	Action Action `json:"action"`
	Item   T      `json:"item"`
}

func Created[T any](item T) Update[T] { return Update[T]{Action: ActionCreate, Item: item} }
func Updated[T any](item T) Update[T] { return Update[T]{Action: ActionUpdate, Item: item} }
func Deleted[T any](item T) Update[T] { return Update[T]{Action: ActionDelete, Item: item} }

// Match calls the handler for the update's action. Every action must be
// handled; an out-of-range action yields ErrUnknownAction.
func (u Update[T]) Match(onCreate, onUpdate, onDelete func(T) error) error {
	switch u.Action {
	case ActionCreate:
		return onCreate(u.Item)
	case ActionUpdate:
		return onUpdate(u.Item)
	case ActionDelete:
		return onDelete(u.Item)
	}
	return fmt.Errorf("%w: %d", ErrUnknownAction, int(u.Action))
}
