package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/bus"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
)

type fakeRefresh struct {
	pair  models.TokenPair
	err   error
	calls int
}

func (f *fakeRefresh) Refresh(context.Context, string) (models.TokenPair, error) {
	f.calls++
	if f.err != nil {
		return models.TokenPair{}, f.err
	}
	return f.pair, nil
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func testUser() *models.User {
	return &models.User{ID: "u1", DisplayName: "Asha", IsVerified: true}
}

func TestAdoptPublishesLoginCompleted(t *testing.T) {
	st := storage.NewMemoryStore()
	b := bus.New()
	s := NewStore(st, b, &fakeRefresh{})

	var got *models.User
	b.Subscribe(bus.EventLoginCompleted, func(p interface{}) {
		got = p.(bus.LoginCompleted).User
	})

	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: "tok-1", RefreshToken: "ref-1"}))

	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	// Subscribers must see a fully queryable session mid-publish;
	// verify it stayed queryable afterwards too.
	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "tok-1", cur.Token)

	var persisted string
	found, err := storage.GetJSON(st, storage.KeyAuthToken, &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tok-1", persisted)
}

func TestAdoptRejectsPartialPair(t *testing.T) {
	s := NewStore(storage.NewMemoryStore(), bus.New(), &fakeRefresh{})

	assert.Error(t, s.Adopt(nil, models.TokenPair{IDToken: "tok"}))
	assert.Error(t, s.Adopt(testUser(), models.TokenPair{}))
	assert.Nil(t, s.Current())
}

func TestCurrentNeverReturnsPartialPair(t *testing.T) {
	s := NewStore(storage.NewMemoryStore(), bus.New(), &fakeRefresh{})
	assert.Nil(t, s.Current())

	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: "tok"}))
	cur := s.Current()
	require.NotNil(t, cur)
	assert.NotNil(t, cur.User)
	assert.NotEmpty(t, cur.Token)
}

func TestClearPublishesLogoutAndWipesStorage(t *testing.T) {
	st := storage.NewMemoryStore()
	b := bus.New()
	s := NewStore(st, b, &fakeRefresh{})

	logouts := 0
	b.Subscribe(bus.EventLogoutCompleted, func(p interface{}) {
		logouts++
		assert.True(t, p.(bus.LogoutCompleted).ResetCounters)
	})

	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: "tok"}))
	s.Clear()
	s.Clear() // idempotent, no second event

	assert.Equal(t, 1, logouts)
	assert.Nil(t, s.Current())

	_, found, _ := st.Get(storage.KeyUser)
	assert.False(t, found)
	_, found, _ = st.Get(storage.KeyAuthToken)
	assert.False(t, found)
}

func TestHydrateRestoresSession(t *testing.T) {
	st := storage.NewMemoryStore()
	b := bus.New()

	first := NewStore(st, b, &fakeRefresh{})
	require.NoError(t, first.Adopt(testUser(), models.TokenPair{IDToken: "tok-h", RefreshToken: "ref-h"}))

	events := 0
	b.Subscribe(bus.EventLoginCompleted, func(interface{}) { events++ })

	second := NewStore(st, b, &fakeRefresh{})
	second.Hydrate()

	cur := second.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "u1", cur.User.ID)
	assert.Equal(t, "tok-h", cur.Token)
	assert.Zero(t, events, "hydrate is soft and must not re-announce a login")
}

func TestHydrateDiscardsPartialRecord(t *testing.T) {
	st := storage.NewMemoryStore()
	require.NoError(t, storage.SetJSON(st, storage.KeyAuthToken, "orphan-token"))

	s := NewStore(st, bus.New(), &fakeRefresh{})
	s.Hydrate()

	assert.Nil(t, s.Current())
	_, found, _ := st.Get(storage.KeyAuthToken)
	assert.False(t, found, "orphaned half of the pair must be dropped")
}

func TestTokenEmptyWhenUnauthenticated(t *testing.T) {
	s := NewStore(storage.NewMemoryStore(), bus.New(), &fakeRefresh{})

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenRefreshesStaleBearer(t *testing.T) {
	st := storage.NewMemoryStore()
	refresher := &fakeRefresh{pair: models.TokenPair{IDToken: signedToken(t, time.Hour)}}
	s := NewStore(st, bus.New(), refresher)

	stale := signedToken(t, -time.Minute)
	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: stale, RefreshToken: "ref-1"}))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, refresher.pair.IDToken, token)

	var persisted string
	_, err = storage.GetJSON(st, storage.KeyAuthToken, &persisted)
	require.NoError(t, err)
	assert.Equal(t, token, persisted, "refreshed bearer is persisted")
}

func TestTokenKeepsFreshBearer(t *testing.T) {
	refresher := &fakeRefresh{}
	s := NewStore(storage.NewMemoryStore(), bus.New(), refresher)

	fresh := signedToken(t, time.Hour)
	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: fresh, RefreshToken: "ref-1"}))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Zero(t, refresher.calls)
}

func TestTokenRefreshFailureHandsOutStaleBearer(t *testing.T) {
	refresher := &fakeRefresh{err: errors.New("upstream down")}
	s := NewStore(storage.NewMemoryStore(), bus.New(), refresher)

	stale := signedToken(t, -time.Minute)
	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: stale, RefreshToken: "ref-1"}))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stale, token, "server stays authoritative over a dead bearer")
}

func TestOpaqueTokenTreatedAsFresh(t *testing.T) {
	refresher := &fakeRefresh{}
	s := NewStore(storage.NewMemoryStore(), bus.New(), refresher)

	require.NoError(t, s.Adopt(testUser(), models.TokenPair{IDToken: "opaque-bearer", RefreshToken: "ref"}))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-bearer", token)
	assert.Zero(t, refresher.calls)
}
