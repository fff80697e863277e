package conversation

import (
	"fmt"
	"strings"

	"github.com/soyeahso/orderbot/internal/domain"
)

// Quick reply ids. Customers on text-only channels type them verbatim.
const (
	OptBrowse       = "browse_products"
	OptCheckOrder   = "check_order"
	OptSupport      = "contact_support"
	OptAddMore      = "add_more"
	OptCheckout     = "proceed_checkout"
	OptConfirmOrder = "confirm_order"
	OptCancelOrder  = "cancel_order"
)

// Business is the shop identity shown to customers.
type Business struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

const (
	msgRestarted         = "🔄 *Conversation Restarted!*\n\nYour previous selections have been cleared. Let's start fresh!"
	msgNotUnderstood     = "I didn't understand that. Please choose one of the options below."
	msgNoProducts        = "😔 Sorry, no products are available right now. Please check back later."
	msgInvalidProduct    = "Please enter a valid product number (1-%d), or type 'restart' to start over."
	msgInvalidQuantity   = "Please enter a valid quantity (a whole number greater than 0)."
	msgInvalidName       = "Please reply with your full name (2 to 100 characters)."
	msgAddMoreButtons    = "Please use the buttons to add more products or go to checkout."
	msgInvalidPayment    = "Please choose a payment option using the buttons below."
	msgConfirmButtons    = "Please confirm or cancel your order using the buttons below."
	msgConfirmQuestion   = "Is everything correct?"
	msgCancelled         = "❌ Order cancelled. Type 'hi' whenever you want to start a new order."
	msgGenericApology    = "😔 Sorry, something went wrong on our side. Please type 'hi' to start again."
	msgCommitFailed      = "😔 Sorry, we couldn't place your order. Please try again or contact support."
	msgReceiptFailed     = "Your order is confirmed, but we couldn't generate your receipt. Please contact support if you need one."
	msgLookupUnavailable = "Order lookup is not available right now. Please contact support."
	msgNoOrders          = "You have no orders yet. Tap Browse to place your first one."
)

func welcomePrompt(b Business) domain.Prompt {
	return domain.ChoicePrompt(
		fmt.Sprintf("🛍️ Welcome to *%s*!\n\nI can help you browse our products and place an order.\n\nWhat would you like to do?", b.Name),
		domain.Option{ID: OptBrowse, Label: "🛍️ Browse"},
		domain.Option{ID: OptCheckOrder, Label: "📋 My Orders"},
		domain.Option{ID: OptSupport, Label: "📞 Support"},
	)
}

func catalogPrompt(page []domain.Product, total int) domain.Prompt {
	var b strings.Builder
	b.WriteString("🛍️ *Our Products*\n")
	for i, p := range page {
		fmt.Fprintf(&b, "\n%d. *%s* - %s", i+1, p.Name, domain.FormatMoney(p.UnitPrice))
		if p.Description != "" {
			fmt.Fprintf(&b, "\n   %s", p.Description)
		}
	}
	if total > len(page) {
		fmt.Fprintf(&b, "\n\nShowing %d of %d products.", len(page), total)
	}
	b.WriteString("\n\nReply with the product number (e.g. 1).\nType 'restart' anytime to start over.")
	return domain.TextPrompt(b.String())
}

func selectedPrompt(p domain.Product) domain.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ You selected: *%s*\n💰 Price: %s", p.Name, domain.FormatMoney(p.UnitPrice))
	if p.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", p.Description)
	}
	b.WriteString("\n\nHow many would you like? Reply with a number.")
	return domain.TextPrompt(b.String())
}

func addMoreChoice(body string) domain.Prompt {
	return domain.ChoicePrompt(body,
		domain.Option{ID: OptAddMore, Label: "➕ Add More"},
		domain.Option{ID: OptCheckout, Label: "🛒 Checkout"},
	)
}

func addedPrompt(item domain.LineItem, total string) domain.Prompt {
	return addMoreChoice(fmt.Sprintf(
		"✅ Added to your order:\n%s\n\n🛒 Order total so far: %s\n\nWould you like to add more products?",
		itemLine(item), total))
}

func itemLine(l domain.LineItem) string {
	return fmt.Sprintf("• %s × %d = %s", l.Name, l.Quantity, domain.FormatMoney(l.LineTotal))
}

func itemLines(items []domain.LineItem) string {
	lines := make([]string, len(items))
	for i, l := range items {
		lines[i] = itemLine(l)
	}
	return strings.Join(lines, "\n")
}

func summaryPrompt(d domain.Draft) domain.Prompt {
	return domain.TextPrompt(fmt.Sprintf(
		"📋 *Order Summary*\n\n%s\n\n💰 *Total: %s*\n\nPlease reply with your full name to continue.",
		itemLines(d.Items), domain.FormatMoney(d.Total())))
}

func paymentChoice(body string) domain.Prompt {
	return domain.ChoicePrompt(body,
		domain.Option{ID: string(domain.PaymentInstant), Label: "💳 Pay Now"},
		domain.Option{ID: string(domain.PaymentNet30), Label: "📅 Pay in 30 Days"},
	)
}

func paymentPrompt() domain.Prompt {
	return paymentChoice("💳 *Payment Method*\n\nHow would you like to pay?")
}

func confirmChoice(body string) domain.Prompt {
	return domain.ChoicePrompt(body,
		domain.Option{ID: OptConfirmOrder, Label: "✅ Confirm"},
		domain.Option{ID: OptCancelOrder, Label: "❌ Cancel"},
	)
}

// recapPrompts shows the full order as plain text, then asks for
// confirmation in a separate short choice. Choice bodies are capped far
// below text bodies on some channels, and the total must never be cut.
func recapPrompts(phone string, d domain.Draft) []domain.Prompt {
	return []domain.Prompt{
		domain.TextPrompt(fmt.Sprintf(
			"🔍 *Please confirm your order*\n\n👤 Name: %s\n📱 Phone: %s\n\n🛍️ *Items:*\n%s\n\n💰 *Total: %s*\n💳 Payment: %s",
			d.CustomerName, phone, itemLines(d.Items), domain.FormatMoney(d.Total()), d.PaymentMethod.Label())),
		confirmChoice(msgConfirmQuestion),
	}
}

func successPrompt(o *domain.Order, b Business) domain.Prompt {
	payment := "💳 Please complete your payment now."
	if o.PaymentMethod == domain.PaymentNet30 {
		payment = "📅 Payment is due within 30 days."
	}
	return domain.TextPrompt(fmt.Sprintf(
		"🎉 *Order Confirmed!*\n\n📋 Order number: *%s*\n💰 Total: %s\n\n%s\n\nThank you for shopping with %s!",
		o.OrderNumber, domain.FormatMoney(o.TotalAmount), payment, b.Name))
}

func receiptLinkPrompt(url string) domain.Prompt {
	return domain.TextPrompt("📄 Your receipt: " + url)
}

func supportPrompt(b Business) domain.Prompt {
	var sb strings.Builder
	sb.WriteString("📞 *Contact Support*\n")
	if b.Email != "" {
		sb.WriteString("\n📧 Email: " + b.Email)
	}
	if b.Phone != "" {
		sb.WriteString("\n📱 Phone: " + b.Phone)
	}
	if b.Address != "" {
		sb.WriteString("\n📍 Address: " + b.Address)
	}
	sb.WriteString("\n\nOur team is available Monday to Friday, 9 AM to 6 PM.")
	return domain.TextPrompt(sb.String())
}

func recentOrdersPrompt(list []domain.Order) domain.Prompt {
	if len(list) == 0 {
		return domain.TextPrompt(msgNoOrders)
	}
	lines := make([]string, len(list))
	for i, o := range list {
		lines[i] = fmt.Sprintf("• %s (%s) - %s", o.OrderNumber, o.Status, domain.FormatMoney(o.TotalAmount))
	}
	return domain.TextPrompt("📋 *Your Recent Orders*\n\n" + strings.Join(lines, "\n"))
}
