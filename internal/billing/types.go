package billing

import (
	"errors"
	"fmt"
)

// TaskType identifies a purchase or inventory operation.
type TaskType int

const (
	TaskRequestInventory TaskType = iota
	TaskPurchaseFullVersion
	TaskPurchaseLiveUpdates
	TaskPurchaseDepthContours
	TaskPurchaseContourLines
)

// TaskTypes lists every task type.
var TaskTypes = []TaskType{
	TaskRequestInventory,
	TaskPurchaseFullVersion,
	TaskPurchaseLiveUpdates,
	TaskPurchaseDepthContours,
	TaskPurchaseContourLines,
}

func (t TaskType) String() string {
	switch t {
	case TaskRequestInventory:
		return "request_inventory"
	case TaskPurchaseFullVersion:
		return "purchase_full_version"
	case TaskPurchaseLiveUpdates:
		return "purchase_live_updates"
	case TaskPurchaseDepthContours:
		return "purchase_depth_contours"
	case TaskPurchaseContourLines:
		return "purchase_contour_lines"
	default:
		return fmt.Sprintf("task(%d)", int(t))
	}
}

// MarshalText encodes the task type by name.
func (t TaskType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a task type name.
func (t *TaskType) UnmarshalText(text []byte) error {
	for _, task := range TaskTypes {
		if task.String() == string(text) {
			*t = task
			return nil
		}
	}
	return fmt.Errorf("unknown task type %q", text)
}

// PurchaseState is the known ownership state of a product.
type PurchaseState int

const (
	StateUnknown PurchaseState = iota
	StatePurchased
	StateNotPurchased
)

func (s PurchaseState) String() string {
	switch s {
	case StatePurchased:
		return "purchased"
	case StateNotPurchased:
		return "not_purchased"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s PurchaseState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unrecognized names decode as unknown.
func (s *PurchaseState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "purchased":
		*s = StatePurchased
	case "not_purchased":
		*s = StateNotPurchased
	default:
		*s = StateUnknown
	}
	return nil
}

// PurchaseInfo is a completed platform purchase awaiting or past verification.
type PurchaseInfo struct {
	SKU           string `json:"sku"`
	OrderID       string `json:"orderId"`
	PurchaseToken string `json:"purchaseToken"`
}

var (
	// ErrTaskInProgress is returned when another task holds the gate.
	ErrTaskInProgress = errors.New("billing task already in progress")
	// ErrBillingUnavailable is returned for developer builds and when billing is disabled.
	ErrBillingUnavailable = errors.New("billing unavailable")
	// ErrMalformedResponse wraps JSON decoding failures of remote responses.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyUserID is returned when registration produced no usable identity.
	ErrEmptyUserID = errors.New("empty user id")
	// ErrPurchaseRejected wraps an "error" field returned by the verification endpoint.
	ErrPurchaseRejected = errors.New("purchase rejected")
	// ErrPurchaseCancelled is returned by a platform when the user abandons the flow.
	ErrPurchaseCancelled = errors.New("purchase cancelled")
	// ErrUnknownSKU is returned for SKUs not in the catalog.
	ErrUnknownSKU = errors.New("unknown sku")
	// ErrClosed is returned once the helper has been closed.
	ErrClosed = errors.New("billing helper closed")
)
