package event

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

// Definition declares the validation rules for one event kind.
type Definition struct {
	// Kind is the event kind this definition covers.
	Kind Kind
	// ValidatePayload checks the kind-specific payload shape. Nil means the
	// kind accepts any payload, including none.
	ValidatePayload func(payload []byte) error
}

// Registry validates events before the sequencer assigns sequence numbers.
type Registry struct {
	definitions map[Kind]Definition
}

// NewRegistry returns a registry with every defined order event kind
// registered. This is the registry used by the authority and by device
// agents; partial registries exist only in tests.
func NewRegistry() *Registry {
	r := &Registry{definitions: make(map[Kind]Definition)}
	for _, def := range coreDefinitions() {
		// Kinds are unique constants; a duplicate here is a programming error.
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a definition to the registry.
func (r *Registry) Register(def Definition) error {
	if !def.Kind.IsValid() {
		return fmt.Errorf("register event definition: unknown kind %q", def.Kind)
	}
	if _, exists := r.definitions[def.Kind]; exists {
		return fmt.Errorf("register event definition: duplicate kind %q", def.Kind)
	}
	r.definitions[def.Kind] = def
	return nil
}

// ValidateForAppend checks envelope completeness and payload validity.
// It returns the normalized event on success.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	evt = evt.Normalize()
	if evt.EventID == "" {
		return Event{}, apperrors.New(apperrors.CodeEventIDRequired, "event id is required")
	}
	if evt.OrderID == "" {
		return Event{}, apperrors.New(apperrors.CodeEventOrderIDRequired, "order id is required")
	}
	if evt.OriginDeviceID == "" {
		return Event{}, apperrors.New(apperrors.CodeEventDeviceIDRequired, "origin device id is required")
	}
	if evt.Seq != 0 {
		return Event{}, apperrors.New(apperrors.CodeEventAlreadySequenced, "event already carries a server sequence")
	}
	def, ok := r.definitions[evt.Kind]
	if !ok {
		return Event{}, apperrors.WithMetadata(apperrors.CodeEventKindUnknown, "unknown event kind", map[string]string{
			"kind": string(evt.Kind),
		})
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(evt.PayloadJSON); err != nil {
			return Event{}, apperrors.Wrap(apperrors.CodeEventPayloadInvalid,
				fmt.Sprintf("invalid %s payload", evt.Kind), err)
		}
	}
	return evt, nil
}

func coreDefinitions() []Definition {
	return []Definition{
		{Kind: KindOrderCreated, ValidatePayload: validateCreatePayload},
		{Kind: KindItemAdded, ValidatePayload: validateItemAddedPayload},
		{Kind: KindItemRemoved, ValidatePayload: validateItemRemovedPayload},
		{Kind: KindItemUpdated, ValidatePayload: validateItemUpdatedPayload},
		{Kind: KindOrderSent, ValidatePayload: validateSentPayload},
		{Kind: KindPaymentApplied, ValidatePayload: validatePaymentAppliedPayload},
		{Kind: KindPaymentVoided, ValidatePayload: validatePaymentVoidedPayload},
		{Kind: KindOrderClosed, ValidatePayload: validateOptionalPayload[ClosedPayload]},
		{Kind: KindOrderReopened, ValidatePayload: validateOptionalPayload[ReopenedPayload]},
		{Kind: KindDiscountApplied, ValidatePayload: validateDiscountAppliedPayload},
		{Kind: KindDiscountRemoved, ValidatePayload: validateDiscountRemovedPayload},
		{Kind: KindTabOpened, ValidatePayload: validateOptionalPayload[TabOpenedPayload]},
		{Kind: KindTabClosed, ValidatePayload: validateOptionalPayload[TabClosedPayload]},
		{Kind: KindGuestCountChanged, ValidatePayload: validateGuestCountChangedPayload},
		{Kind: KindNoteChanged, ValidatePayload: validateNoteChangedPayload},
		{Kind: KindOrderMetadataUpdated, ValidatePayload: validateMetadataUpdatedPayload},
		{Kind: KindCompVoidApplied, ValidatePayload: validateCompVoidAppliedPayload},
	}
}

// validateOptionalPayload accepts an empty payload or a well-formed T.
func validateOptionalPayload[T any](payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var decoded T
	return json.Unmarshal(payload, &decoded)
}

func validateCreatePayload(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var decoded CreatePayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if decoded.GuestCount < 0 {
		return fmt.Errorf("guest count must not be negative")
	}
	if decoded.TaxRateBasisPoints < 0 {
		return fmt.Errorf("tax rate must not be negative")
	}
	return nil
}

func validateItemAddedPayload(payload []byte) error {
	var decoded ItemAddedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.LineItemID) == "" {
		return fmt.Errorf("line item id is required")
	}
	if strings.TrimSpace(decoded.MenuItemID) == "" {
		return fmt.Errorf("menu item id is required")
	}
	if decoded.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if decoded.UnitPriceCents < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	return nil
}

func validateItemRemovedPayload(payload []byte) error {
	var decoded ItemRemovedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.LineItemID) == "" {
		return fmt.Errorf("line item id is required")
	}
	return nil
}

func validateItemUpdatedPayload(payload []byte) error {
	var decoded ItemUpdatedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.LineItemID) == "" {
		return fmt.Errorf("line item id is required")
	}
	if decoded.Quantity != nil && *decoded.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}

func validateSentPayload(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var decoded SentPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if decoded.CourseNumber < 0 {
		return fmt.Errorf("course number must not be negative")
	}
	return nil
}

func validatePaymentAppliedPayload(payload []byte) error {
	var decoded PaymentAppliedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.PaymentID) == "" {
		return fmt.Errorf("payment id is required")
	}
	if decoded.AmountCents <= 0 {
		return fmt.Errorf("payment amount must be positive")
	}
	if decoded.TipCents < 0 {
		return fmt.Errorf("tip must not be negative")
	}
	return nil
}

func validatePaymentVoidedPayload(payload []byte) error {
	var decoded PaymentVoidedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.PaymentID) == "" {
		return fmt.Errorf("payment id is required")
	}
	return nil
}

func validateDiscountAppliedPayload(payload []byte) error {
	var decoded DiscountAppliedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.DiscountID) == "" {
		return fmt.Errorf("discount id is required")
	}
	if decoded.AmountCents < 0 || decoded.PercentBasisPoints < 0 {
		return fmt.Errorf("discount amounts must not be negative")
	}
	if decoded.AmountCents == 0 && decoded.PercentBasisPoints == 0 {
		return fmt.Errorf("discount requires an amount or a percentage")
	}
	if decoded.AmountCents > 0 && decoded.PercentBasisPoints > 0 {
		return fmt.Errorf("discount cannot carry both an amount and a percentage")
	}
	if decoded.PercentBasisPoints > 10000 {
		return fmt.Errorf("discount percentage cannot exceed 100%%")
	}
	return nil
}

func validateDiscountRemovedPayload(payload []byte) error {
	var decoded DiscountRemovedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.DiscountID) == "" {
		return fmt.Errorf("discount id is required")
	}
	return nil
}

func validateGuestCountChangedPayload(payload []byte) error {
	var decoded GuestCountChangedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if decoded.GuestCount < 0 {
		return fmt.Errorf("guest count must not be negative")
	}
	return nil
}

func validateNoteChangedPayload(payload []byte) error {
	var decoded NoteChangedPayload
	return json.Unmarshal(payload, &decoded)
}

func validateMetadataUpdatedPayload(payload []byte) error {
	var decoded MetadataUpdatedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if len(decoded.Fields) == 0 {
		return fmt.Errorf("metadata update requires at least one field")
	}
	return nil
}

func validateCompVoidAppliedPayload(payload []byte) error {
	var decoded CompVoidAppliedPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.LineItemID) == "" {
		return fmt.Errorf("line item id is required")
	}
	if decoded.Mode != CompVoidModeComp && decoded.Mode != CompVoidModeVoid {
		return fmt.Errorf("mode must be %q or %q", CompVoidModeComp, CompVoidModeVoid)
	}
	if decoded.AmountCents < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	return nil
}
