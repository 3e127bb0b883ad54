package counter

import "errors"

// Errors returned by the store's public API, checkable with errors.Is.
var (
	// ErrUnknownItem is returned for an item id that is not configured.
	ErrUnknownItem = errors.New("counter: unknown item")

	// ErrSlotOutOfRange is returned when a slot index falls outside
	// [0, slots) for the item.
	ErrSlotOutOfRange = errors.New("counter: slot out of range")

	// ErrUnavailable is returned when the backing sorted-set service
	// cannot be reached. Callers may retry once it recovers.
	ErrUnavailable = errors.New("counter: backing store unavailable")
)
