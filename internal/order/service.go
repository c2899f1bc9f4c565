package order

import (
	"errors"
	"time"
)

// ErrNotOwner means a seller tried to act on a line item that belongs to a
// different shop.
var ErrNotOwner = errors.New("order item belongs to another seller")

// Service exposes order reads and the dispatch/delivery state machine.
type Service struct {
	repo      Repository
	publisher EventPublisher
}

func NewService(repo Repository, publisher EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

func (s *Service) ListByUser(userID int) ([]Order, error) {
	return s.repo.ListByUser(userID)
}

func (s *Service) GetForUser(id, userID int) (Order, error) {
	o, err := s.repo.GetByID(id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *Service) ListSellerItems(shopOwnerID int) ([]OrderItem, error) {
	return s.repo.ListItemsByShopOwner(shopOwnerID)
}

// RequestDispatch moves pending -> dispatch_requested. Only the owning seller
// may request dispatch for a line.
func (s *Service) RequestDispatch(itemID, shopOwnerID int) (OrderItem, error) {
	it, err := s.repo.GetItem(itemID)
	if err != nil {
		return OrderItem{}, err
	}
	if it.ShopOwnerID != shopOwnerID {
		return OrderItem{}, ErrNotOwner
	}
	return s.transition(itemID, ItemStatusPending, ItemStatusDispatchRequest)
}

// MarkDispatched moves dispatch_requested -> dispatched (admin only, enforced
// at the handler).
func (s *Service) MarkDispatched(itemID int) (OrderItem, error) {
	return s.transition(itemID, ItemStatusDispatchRequest, ItemStatusDispatched)
}

// MarkDelivered moves dispatched -> delivered, which also unlocks payout
// eligibility for the line.
func (s *Service) MarkDelivered(itemID int) (OrderItem, error) {
	return s.transition(itemID, ItemStatusDispatched, ItemStatusDelivered)
}

func (s *Service) transition(itemID int, from, to string) (OrderItem, error) {
	it, err := s.repo.TransitionItem(itemID, from, to, time.Now().UTC())
	if err != nil {
		return OrderItem{}, err
	}
	if s.publisher != nil {
		if perr := s.publisher.Publish(EventItemStatusChanged, it); perr != nil {
			logger.Error().Int("item_id", itemID).Err(perr).Msg("event publish failed")
		}
	}
	return it, nil
}
