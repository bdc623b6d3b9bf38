package storage

import "encoding/json"

// Well-known record keys. Each record is independently overwritable;
// the layout is last-write-wins with no locking across writers.
const (
	KeyGuestSession     = "guest_session"
	KeyPhoneAuthSession = "phone_auth_session"
	KeyUser             = "user"
	KeyAuthToken        = "authToken"
	KeyRefreshToken     = "refreshToken"
	KeyUserRole         = "userRole"
)

// Store is the durable client-side key-value store shared by the
// identity and session components.
type Store interface {
	// Get returns the raw record and whether it exists.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// GetJSON reads a record and unmarshals it into out. Returns false
// when the record does not exist.
func GetJSON(s Store, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and writes it under key.
func SetJSON(s Store, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, raw)
}
