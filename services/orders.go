package services

import (
	"context"

	"prago-api/models"
	"prago-api/store"
)

type OrderService struct {
	store store.Store
}

func NewOrderService(s store.Store) *OrderService {
	return &OrderService{store: s}
}

// List returns the user's orders, newest first.
func (s *OrderService) List(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.store.Repos().Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, userID int64, number string) (*models.Order, error) {
	order, err := s.store.Repos().Orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "Order not found")
	}
	if order.UserID != userID {
		return nil, notFoundError("Order not found")
	}
	return order, nil
}
