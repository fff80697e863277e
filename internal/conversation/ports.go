// Package conversation implements the purchasing dialogue: a fixed sequence
// of steps driven one inbound event at a time from persisted sessions.
package conversation

import (
	"context"
	"errors"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/orders"
)

// ErrCorruptSession is returned by a SessionStore when a stored session
// cannot be decoded. The engine treats such a session as absent.
var ErrCorruptSession = errors.New("conversation: corrupt session")

// SessionStore persists one session per identity. Get returns (nil, nil)
// when no session exists.
type SessionStore interface {
	Get(ctx context.Context, identity string) (*domain.Session, error)
	Put(ctx context.Context, sess *domain.Session) error
	Delete(ctx context.Context, identity string) error
}

// Catalog lists the products customers can order, ordered by category then name.
type Catalog interface {
	ListAvailable(ctx context.Context) ([]domain.Product, error)
}

// Committer turns a finished draft into an order.
type Committer interface {
	Commit(ctx context.Context, req orders.CommitRequest) (*domain.Order, error)
}

// OrderLookup finds a customer's recent orders.
type OrderLookup interface {
	ListByPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error)
}

// ReceiptIssuer produces a document prompt for a committed order.
type ReceiptIssuer interface {
	Issue(ctx context.Context, o *domain.Order) (domain.Prompt, error)
}

// Notifier delivers prompts to a customer.
type Notifier interface {
	Notify(ctx context.Context, to string, p domain.Prompt) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to string, p domain.Prompt) error

func (f NotifierFunc) Notify(ctx context.Context, to string, p domain.Prompt) error {
	return f(ctx, to, p)
}
