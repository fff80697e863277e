package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Step is a state of the purchasing conversation.
type Step string

const (
	StepStart             Step = "start"
	StepMainMenu          Step = "main_menu"
	StepSelectProduct     Step = "select_product"
	StepSpecifyQuantity   Step = "specify_quantity"
	StepAddMoreProducts   Step = "add_more_products"
	StepCustomerInfo      Step = "customer_info"
	StepPaymentMethod     Step = "payment_method"
	StepOrderConfirmation Step = "order_confirmation"
)

// Steps lists every conversation step in flow order.
var Steps = []Step{
	StepStart,
	StepMainMenu,
	StepSelectProduct,
	StepSpecifyQuantity,
	StepAddMoreProducts,
	StepCustomerInfo,
	StepPaymentMethod,
	StepOrderConfirmation,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// Session is the persisted conversation state of one customer identity.
// An absent session is equivalent to StepStart with an empty draft.
type Session struct {
	Identity  string    `json:"identity"`
	Step      Step      `json:"step"`
	Draft     Draft     `json:"draft"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Draft is the order being assembled during a conversation.
type Draft struct {
	Items             []LineItem    `json:"items,omitempty"`
	AvailableProducts []Product     `json:"availableProducts,omitempty"`
	SelectedProduct   *Product      `json:"selectedProduct,omitempty"`
	CustomerName      string        `json:"customerName,omitempty"`
	PaymentMethod     PaymentMethod `json:"paymentMethod,omitempty"`
}

// Total sums the line totals of the draft.
func (d Draft) Total() decimal.Decimal {
	return SumLines(d.Items)
}

// Clone returns a deep copy so step handlers never mutate a loaded session.
func (d Draft) Clone() Draft {
	out := d
	if d.Items != nil {
		out.Items = append([]LineItem(nil), d.Items...)
	}
	if d.AvailableProducts != nil {
		out.AvailableProducts = append([]Product(nil), d.AvailableProducts...)
	}
	if d.SelectedProduct != nil {
		p := *d.SelectedProduct
		out.SelectedProduct = &p
	}
	return out
}

// DraftVersion is the current draft envelope version.
const DraftVersion = 1

// ErrUnsupportedDraft is returned when a stored draft cannot be decoded.
var ErrUnsupportedDraft = errors.New("unsupported draft encoding")

type draftEnvelope struct {
	Version int   `json:"version"`
	Draft   Draft `json:"draft"`
}

// EncodeDraft serializes a draft into its versioned envelope.
func EncodeDraft(d Draft) ([]byte, error) {
	return json.Marshal(draftEnvelope{Version: DraftVersion, Draft: d})
}

// DecodeDraft parses a versioned draft envelope.
func DecodeDraft(data []byte) (Draft, error) {
	var env draftEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrUnsupportedDraft, err)
	}
	if env.Version != DraftVersion {
		return Draft{}, fmt.Errorf("%w: version %d", ErrUnsupportedDraft, env.Version)
	}
	return env.Draft, nil
}
