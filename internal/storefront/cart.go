package storefront

import (
	"context"
	"fmt"
	"log/slog"

	"storefront/internal/models"
)

func (s *State) AddToCart(item models.CartItem) {
	s.Cart = append(s.Cart, item)
	s.Notify(fmt.Sprintf("%s ajouté !", item.Name), NotifySuccess)
}

// RemoveFromCart drops the item at index; an out-of-range index is ignored.
func (s *State) RemoveFromCart(index int) bool {
	if index < 0 || index >= len(s.Cart) {
		return false
	}
	s.Cart = append(s.Cart[:index:index], s.Cart[index+1:]...)
	return true
}

func (s *State) CartCount() int {
	return len(s.Cart)
}

// CartTotal sums line prices. Price is already the line total, quantity is
// informational.
func (s *State) CartTotal() float64 {
	total := 0.0
	for _, item := range s.Cart {
		total += item.Price
	}
	return total
}

func FormatPrice(amount float64) string {
	return fmt.Sprintf("%.2f€", amount)
}

// NewPrintItem is the cart line for a batch of uploaded photos.
func NewPrintItem(photos int, imageURL string) models.CartItem {
	return models.CartItem{
		Name:     fmt.Sprintf("Tirages Standard (%d photos)", photos),
		Price:    float64(photos) * PricePerPhoto,
		Quantity: photos,
		ImageURL: imageURL,
	}
}

// UploadFinished puts the prints of a completed upload in the cart. Only the
// job the session is waiting for counts: after a logout or a newer upload
// the completion is dropped and false is returned.
func (s *State) UploadFinished(jobID, orderID string, item models.CartItem) bool {
	if jobID == "" || s.UploadJobID != jobID {
		return false
	}
	s.UploadJobID = ""
	s.DraftOrderID = orderID
	s.AddToCart(item)
	return true
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, userID string, items []models.CartItem, total float64) (*models.Order, error)
}

// Checkout turns the cart into an order. Without a user or with an empty cart
// nothing happens and nil is returned. On failure the cart is kept.
func (s *State) Checkout(ctx context.Context, creator OrderCreator) (*models.Order, error) {
	if !s.LoggedIn() || len(s.Cart) == 0 {
		return nil, nil
	}

	order, err := creator.CreateOrder(ctx, s.CurrentUser.ID, s.Cart, s.CartTotal())
	if err != nil {
		slog.Error("Erreur commande", "user_id", s.CurrentUser.ID, "error", err)
		s.Notify("Erreur lors de la commande. Êtes-vous connecté ?", NotifyError)
		return nil, err
	}

	s.Orders = append([]models.Order{*order}, s.Orders...)
	s.Cart = []models.CartItem{}
	s.ActiveTab = models.TabProfile
	s.Notify("Commande enregistrée !", NotifySuccess)
	return order, nil
}

// UserOrders returns the orders placed by the current user.
func (s *State) UserOrders() []models.Order {
	if !s.LoggedIn() {
		return nil
	}
	out := make([]models.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.UserID == "" || o.UserID == s.CurrentUser.ID {
			out = append(out, o)
		}
	}
	return out
}
