// internal/client/cartstate/service_port.go
package cartstate

import (
	"context"
	"time"
)

// Item is one cart line as the client sees it.
type Item struct {
	ProductID string `json:"productId" yaml:"productId"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
}

// RemoteCart is the Cart Service's view of a cart.
type RemoteCart struct {
	ID         string
	Items      []Item
	TotalItems int
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

// Actor says on whose behalf a Cart Service call is made. IDToken is set
// once the user is authenticated; GuestSessionID while a guest session exists.
type Actor struct {
	IDToken        string
	GuestSessionID string
}

func (a Actor) Authenticated() bool { return a.IDToken != "" }

// CartService is the remote collaborator owning cart persistence.
type CartService interface {
	GetCart(ctx context.Context, actor Actor) (*RemoteCart, error)
	MergeCart(ctx context.Context, actor Actor, items []Item, sessionID string) (*RemoteCart, error)
	AddItem(ctx context.Context, actor Actor, productID string, qty int) (*RemoteCart, error)
	SetItemQty(ctx context.Context, actor Actor, productID string, qty int) (*RemoteCart, error)
	RemoveItem(ctx context.Context, actor Actor, productID string) (*RemoteCart, error)
}

// ActorFunc returns the current actor at call time.
type ActorFunc func() Actor
