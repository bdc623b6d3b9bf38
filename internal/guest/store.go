package guest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
)

// Store owns the transient guest identity and its locally addressed
// cart. All operations are synchronous against the profile store with
// no network dependency, so the cart works before any authentication
// exists.
type Store struct {
	mu      sync.Mutex
	storage storage.Store
}

func NewStore(st storage.Store) *Store {
	return &Store{storage: st}
}

// EnsureSessionID returns the existing guest session id, minting and
// persisting one on first use.
func (s *Store) EnsureSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return "", err
	}
	if ensureSessionIDLocked(rec) {
		if err := s.save(rec); err != nil {
			return "", err
		}
	}
	return rec.SessionID, nil
}

// ensureSessionIDLocked mints an id into rec when missing. Caller
// holds the lock and persists the record.
func ensureSessionIDLocked(rec *models.GuestSession) bool {
	if rec.SessionID != "" {
		return false
	}
	rec.SessionID = uuid.NewString()
	return true
}

// SessionID returns the current guest session id without minting one.
func (s *Store) SessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return "", err
	}
	return rec.SessionID, nil
}

// Cart returns a copy of the guest cart. Empty slice if none.
func (s *Store) Cart() ([]models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.CartItem, len(rec.Cart))
	copy(out, rec.Cart)
	return out, nil
}

// ItemCount returns the total quantity across all lines.
func (s *Store) ItemCount() (int, error) {
	items, err := s.Cart()
	if err != nil {
		return 0, err
	}
	return models.CountItems(items), nil
}

// AddItem adds a line, folding quantity into an existing line for the
// same product. The unit price is refreshed to the latest seen.
func (s *Store) AddItem(item models.CartItem) error {
	if item.ProductID == "" {
		return fmt.Errorf("product id is required")
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	// Guest identity is created lazily on first cart write.
	ensureSessionIDLocked(rec)

	merged := false
	for i := range rec.Cart {
		if rec.Cart[i].ProductID == item.ProductID {
			rec.Cart[i].Quantity += item.Quantity
			rec.Cart[i].UnitPrice = item.UnitPrice
			merged = true
			break
		}
	}
	if !merged {
		rec.Cart = append(rec.Cart, item)
	}
	return s.save(rec)
}

// UpdateQuantity sets a line's quantity; zero or negative removes it.
func (s *Store) UpdateQuantity(productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	for i := range rec.Cart {
		if rec.Cart[i].ProductID == productID {
			if quantity <= 0 {
				rec.Cart = append(rec.Cart[:i], rec.Cart[i+1:]...)
			} else {
				rec.Cart[i].Quantity = quantity
			}
			return s.save(rec)
		}
	}
	return fmt.Errorf("product %s not in cart", productID)
}

// RemoveItem deletes a line.
func (s *Store) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	for i := range rec.Cart {
		if rec.Cart[i].ProductID == productID {
			rec.Cart = append(rec.Cart[:i], rec.Cart[i+1:]...)
			return s.save(rec)
		}
	}
	return nil
}

// Clear empties the cart but keeps the guest identity.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.Cart = nil
	return s.save(rec)
}

// Destroy removes the guest session entirely. Called only after a
// verified successful migration.
func (s *Store) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.Delete(storage.KeyGuestSession)
}

// load reads the persisted record. Caller holds the lock.
func (s *Store) load() (*models.GuestSession, error) {
	rec := &models.GuestSession{}
	if _, err := storage.GetJSON(s.storage, storage.KeyGuestSession, rec); err != nil {
		return nil, fmt.Errorf("failed to read guest session: %w", err)
	}
	return rec, nil
}

// save writes the record. Caller holds the lock.
func (s *Store) save(rec *models.GuestSession) error {
	if err := storage.SetJSON(s.storage, storage.KeyGuestSession, rec); err != nil {
		return fmt.Errorf("failed to persist guest session: %w", err)
	}
	return nil
}
