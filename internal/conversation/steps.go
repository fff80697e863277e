package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/orderbot/internal/domain"
)

// effect is what the engine must do with a step outcome.
type effect int

const (
	effectNone   effect = iota // reprompt; the session is left untouched
	effectSave                 // replace the session with next and draft
	effectClear                // delete the session
	effectCommit               // commit the draft, then delete the session
)

// Customer names are stored as given and echoed in the recap and receipt.
const (
	minNameRunes = 2
	maxNameRunes = 100
)

// outcome is the pure decision of a step function.
type outcome struct {
	prompts []domain.Prompt
	next    domain.Step
	draft   domain.Draft
	effect  effect
}

// turn is the input of a step function.
type turn struct {
	event    domain.InboundEvent
	identity string
	step     domain.Step
	draft    domain.Draft
}

type stepFunc func(e *Engine, ctx context.Context, t *turn) (outcome, error)

// handlers maps every step to its step function.
var handlers = map[domain.Step]stepFunc{
	domain.StepStart:             (*Engine).handleStart,
	domain.StepMainMenu:          (*Engine).handleMainMenu,
	domain.StepSelectProduct:     (*Engine).handleSelectProduct,
	domain.StepSpecifyQuantity:   (*Engine).handleSpecifyQuantity,
	domain.StepAddMoreProducts:   (*Engine).handleAddMore,
	domain.StepCustomerInfo:      (*Engine).handleCustomerInfo,
	domain.StepPaymentMethod:     (*Engine).handlePaymentMethod,
	domain.StepOrderConfirmation: (*Engine).handleOrderConfirmation,
}

// transitions lists the steps each step may move to. StepStart as a target
// means the session is deleted.
var transitions = map[domain.Step][]domain.Step{
	domain.StepStart:             {domain.StepMainMenu},
	domain.StepMainMenu:          {domain.StepMainMenu, domain.StepSelectProduct},
	domain.StepSelectProduct:     {domain.StepSelectProduct, domain.StepSpecifyQuantity},
	domain.StepSpecifyQuantity:   {domain.StepSpecifyQuantity, domain.StepAddMoreProducts, domain.StepSelectProduct, domain.StepMainMenu},
	domain.StepAddMoreProducts:   {domain.StepAddMoreProducts, domain.StepSelectProduct, domain.StepCustomerInfo, domain.StepMainMenu},
	domain.StepCustomerInfo:      {domain.StepCustomerInfo, domain.StepPaymentMethod},
	domain.StepPaymentMethod:     {domain.StepPaymentMethod, domain.StepOrderConfirmation},
	domain.StepOrderConfirmation: {domain.StepOrderConfirmation, domain.StepStart},
}

func allowed(from, to domain.Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func reprompt(t *turn, prompts ...domain.Prompt) outcome {
	return outcome{prompts: prompts, next: t.step, draft: t.draft, effect: effectNone}
}

func advance(next domain.Step, d domain.Draft, prompts ...domain.Prompt) outcome {
	return outcome{prompts: prompts, next: next, draft: d, effect: effectSave}
}

// enterStart emits the welcome menu after any leading prompts and parks the
// customer on the main menu with an empty draft.
func (e *Engine) enterStart(leading ...domain.Prompt) outcome {
	return advance(domain.StepMainMenu, domain.Draft{}, append(leading, welcomePrompt(e.cfg.Business))...)
}

func parsePositive(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (e *Engine) handleStart(_ context.Context, _ *turn) (outcome, error) {
	return e.enterStart(), nil
}

func (e *Engine) handleMainMenu(ctx context.Context, t *turn) (outcome, error) {
	switch t.event.Selection() {
	case OptBrowse:
		return e.browse(ctx, domain.Draft{})
	case OptCheckOrder:
		p, err := e.recentOrders(ctx, t.identity)
		if err != nil {
			return outcome{}, err
		}
		return e.enterStart(p), nil
	case OptSupport:
		return e.enterStart(supportPrompt(e.cfg.Business)), nil
	default:
		return e.enterStart(domain.TextPrompt(msgNotUnderstood)), nil
	}
}

// browse snapshots the first page of the catalog into the draft.
func (e *Engine) browse(ctx context.Context, d domain.Draft) (outcome, error) {
	products, err := e.catalog.ListAvailable(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("listing catalog: %w", err)
	}
	if len(products) == 0 {
		return e.enterStart(domain.TextPrompt(msgNoProducts)), nil
	}
	page := products[:min(len(products), e.cfg.PageSize)]
	d.AvailableProducts = append([]domain.Product(nil), page...)
	d.SelectedProduct = nil
	return advance(domain.StepSelectProduct, d, catalogPrompt(page, len(products))), nil
}

func (e *Engine) recentOrders(ctx context.Context, identity string) (domain.Prompt, error) {
	if e.orders == nil {
		return domain.TextPrompt(msgLookupUnavailable), nil
	}
	list, err := e.orders.ListByPhone(ctx, identity, e.cfg.RecentOrders)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("listing orders: %w", err)
	}
	return recentOrdersPrompt(list), nil
}

func (e *Engine) handleSelectProduct(_ context.Context, t *turn) (outcome, error) {
	avail := t.draft.AvailableProducts
	n, ok := parsePositive(t.event.Input())
	if !ok || n > len(avail) {
		return reprompt(t, domain.TextPrompt(fmt.Sprintf(msgInvalidProduct, len(avail)))), nil
	}
	p := avail[n-1]
	t.draft.SelectedProduct = &p
	return advance(domain.StepSpecifyQuantity, t.draft, selectedPrompt(p)), nil
}

func (e *Engine) handleSpecifyQuantity(ctx context.Context, t *turn) (outcome, error) {
	if t.draft.SelectedProduct == nil {
		// nothing to quantify; show the catalog again
		return e.browse(ctx, t.draft)
	}
	qty, ok := parsePositive(t.event.Input())
	if !ok {
		return reprompt(t, domain.TextPrompt(msgInvalidQuantity)), nil
	}
	item := domain.NewLineItem(*t.draft.SelectedProduct, qty)
	t.draft.Items = append(t.draft.Items, item)
	t.draft.SelectedProduct = nil
	return advance(domain.StepAddMoreProducts, t.draft, addedPrompt(item, domain.FormatMoney(t.draft.Total()))), nil
}

func (e *Engine) handleAddMore(ctx context.Context, t *turn) (outcome, error) {
	switch t.event.Selection() {
	case OptAddMore:
		return e.browse(ctx, t.draft)
	case OptCheckout:
		if len(t.draft.Items) == 0 {
			return e.browse(ctx, t.draft)
		}
		return advance(domain.StepCustomerInfo, t.draft, summaryPrompt(t.draft)), nil
	default:
		return reprompt(t, addMoreChoice(msgAddMoreButtons)), nil
	}
}

func (e *Engine) handleCustomerInfo(_ context.Context, t *turn) (outcome, error) {
	name := strings.TrimSpace(t.event.Input())
	if n := utf8.RuneCountInString(name); n < minNameRunes || n > maxNameRunes {
		return reprompt(t, domain.TextPrompt(msgInvalidName)), nil
	}
	t.draft.CustomerName = name
	return advance(domain.StepPaymentMethod, t.draft, paymentPrompt()), nil
}

func (e *Engine) handlePaymentMethod(_ context.Context, t *turn) (outcome, error) {
	method := domain.PaymentMethod(t.event.Selection())
	if !method.Valid() {
		return reprompt(t, paymentChoice(msgInvalidPayment)), nil
	}
	t.draft.PaymentMethod = method
	return advance(domain.StepOrderConfirmation, t.draft, recapPrompts(t.identity, t.draft)...), nil
}

func (e *Engine) handleOrderConfirmation(_ context.Context, t *turn) (outcome, error) {
	switch t.event.Selection() {
	case OptConfirmOrder:
		return outcome{next: domain.StepStart, draft: t.draft, effect: effectCommit}, nil
	case OptCancelOrder:
		return outcome{prompts: []domain.Prompt{domain.TextPrompt(msgCancelled)}, next: domain.StepStart, effect: effectClear}, nil
	default:
		return reprompt(t, confirmChoice(msgConfirmButtons)), nil
	}
}
