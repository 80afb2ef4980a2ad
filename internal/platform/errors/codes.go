// Package errors provides structured error handling for the sync engine.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event validation errors
	CodeEventIDRequired       Code = "EVENT_ID_REQUIRED"
	CodeEventOrderIDRequired  Code = "EVENT_ORDER_ID_REQUIRED"
	CodeEventDeviceIDRequired Code = "EVENT_DEVICE_ID_REQUIRED"
	CodeEventKindUnknown      Code = "EVENT_KIND_UNKNOWN"
	CodeEventPayloadInvalid   Code = "EVENT_PAYLOAD_INVALID"
	CodeEventAlreadySequenced Code = "EVENT_ALREADY_SEQUENCED"

	// Guard rejections
	CodeOrderClosed     Code = "ORDER_CLOSED"
	CodeOrderNotCreated Code = "ORDER_NOT_CREATED"
	CodeOrderExists     Code = "ORDER_ALREADY_EXISTS"

	// Reducer rejections
	CodeItemNotFound     Code = "ITEM_NOT_FOUND"
	CodePaymentNotFound  Code = "PAYMENT_NOT_FOUND"
	CodeDiscountNotFound Code = "DISCOUNT_NOT_FOUND"

	// Sync errors
	CodeBatchOrderMismatch Code = "BATCH_ORDER_MISMATCH"
	CodeSnapshotDiverged   Code = "SNAPSHOT_DIVERGED"

	// Auth errors
	CodeDeviceTokenInvalid  Code = "DEVICE_TOKEN_INVALID"
	CodeDeviceTokenRequired Code = "DEVICE_TOKEN_REQUIRED"
	CodeLocationMismatch    Code = "LOCATION_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps the error code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEventIDRequired, CodeEventOrderIDRequired, CodeEventDeviceIDRequired,
		CodeEventKindUnknown, CodeEventPayloadInvalid, CodeEventAlreadySequenced,
		CodeBatchOrderMismatch:
		return http.StatusBadRequest
	case CodeOrderClosed, CodeOrderNotCreated, CodeOrderExists,
		CodeItemNotFound, CodePaymentNotFound, CodeDiscountNotFound:
		return http.StatusConflict
	case CodeDeviceTokenInvalid, CodeDeviceTokenRequired:
		return http.StatusUnauthorized
	case CodeLocationMismatch:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
