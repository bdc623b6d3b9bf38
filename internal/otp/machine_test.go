package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/api"
	"storefront-gateway/internal/captcha"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
)

const testPhone = "+15551234567"

type fakeAuth struct {
	mu          sync.Mutex
	sessionInfo string
	sendErr     error
	verifyErr   error
	sendCalls   int
	lastProof   string
	lastSession string
	lastCode    string
	user        *models.User
}

func (f *fakeAuth) SendCode(_ context.Context, phone, proof string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.lastProof = proof
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sessionInfo, nil
}

func (f *fakeAuth) VerifyCode(_ context.Context, phone, code, sessionInfo string) (*models.User, models.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCode = code
	f.lastSession = sessionInfo
	if f.verifyErr != nil {
		return nil, models.TokenPair{}, f.verifyErr
	}
	return f.user, models.TokenPair{IDToken: "id-tok", RefreshToken: "ref-tok"}, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) count(want State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == want {
			n++
		}
	}
	return n
}

func newTestMachine(auth *fakeAuth, store storage.Store, cfg Config) *Machine {
	return NewMachine(auth, captcha.Static("proof-ok"), store, cfg)
}

func TestIssueChallengePersistsAndActivates(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{sessionInfo: "sess-1"}
	m := newTestMachine(auth, store, Config{})

	remaining, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, 240, remaining)
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, "proof-ok", auth.lastProof)

	rec := &models.PhoneAuthSession{}
	found, err := storage.GetJSON(store, storage.KeyPhoneAuthSession, rec)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sess-1", rec.SessionInfo)
	assert.Equal(t, testPhone, rec.PhoneNumber)
	assert.Equal(t, 4*time.Minute, rec.ExpiresAt.Sub(rec.Timestamp))
}

func TestIssueChallengeRejectsBadPhone(t *testing.T) {
	m := newTestMachine(&fakeAuth{}, storage.NewMemoryStore(), Config{})

	for _, phone := range []string{"", "15551234567", "+0155512345", "+1555"} {
		_, err := m.IssueChallenge(context.Background(), phone)
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber, "phone %q", phone)
	}
	assert.Equal(t, StateAbsent, m.State())
}

func TestIssueChallengeCaptchaFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewMachine(&fakeAuth{}, captcha.Static(""), store, Config{})

	_, err := m.IssueChallenge(context.Background(), testPhone)
	assert.ErrorIs(t, err, captcha.ErrChallengeSetupFailed)
	assert.Equal(t, StateAbsent, m.State())
}

func TestRestoreOnLoadKeepsChallenge(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{sessionInfo: "sess-keep"}

	issued := newTestMachine(auth, store, Config{})
	t0 := time.Now()
	issued.now = func() time.Time { return t0 }
	_, err := issued.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	issued.mu.Lock()
	issued.cancelTimersLocked()
	issued.mu.Unlock()

	// Simulate a reload one minute later.
	reloaded := newTestMachine(auth, store, Config{})
	reloaded.now = func() time.Time { return t0.Add(time.Minute) }

	remaining, err := reloaded.RestoreOnLoad()
	require.NoError(t, err)
	assert.Equal(t, 180, remaining)
	assert.Equal(t, StateActive, reloaded.State())
	assert.Equal(t, testPhone, reloaded.PhoneNumber())
	assert.Equal(t, "sess-keep", reloaded.challenge.SessionInfo)
	assert.LessOrEqual(t, remaining, 240)
}

func TestRestoreOnLoadWithinWarningWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{sessionInfo: "sess-warn"}

	issued := newTestMachine(auth, store, Config{})
	t0 := time.Now()
	issued.now = func() time.Time { return t0 }
	_, err := issued.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	issued.mu.Lock()
	issued.cancelTimersLocked()
	issued.mu.Unlock()

	reloaded := newTestMachine(auth, store, Config{})
	reloaded.now = func() time.Time { return t0.Add(3*time.Minute + 30*time.Second) }

	remaining, err := reloaded.RestoreOnLoad()
	require.NoError(t, err)
	assert.Equal(t, 30, remaining)
	assert.Equal(t, StateWarning, reloaded.State())
}

func TestRestoreOnLoadDiscardsExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{sessionInfo: "sess-old"}

	issued := newTestMachine(auth, store, Config{})
	t0 := time.Now()
	issued.now = func() time.Time { return t0 }
	_, err := issued.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	issued.mu.Lock()
	issued.cancelTimersLocked()
	issued.mu.Unlock()

	reloaded := newTestMachine(auth, store, Config{})
	reloaded.now = func() time.Time { return t0.Add(5 * time.Minute) }

	remaining, err := reloaded.RestoreOnLoad()
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Equal(t, StateAbsent, reloaded.State())

	_, found, err := store.Get(storage.KeyPhoneAuthSession)
	require.NoError(t, err)
	assert.False(t, found, "expired record must be discarded")
}

func TestWarningAndExpiryTimers(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMachine(&fakeAuth{sessionInfo: "sess-t"}, store, Config{
		Expiry:      120 * time.Millisecond,
		WarningLead: 80 * time.Millisecond,
	})

	rec := &stateRecorder{}
	m.SetStateListener(rec.record)

	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.State() == StateWarning },
		100*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == StateExpired },
		300*time.Millisecond, 5*time.Millisecond)

	_, found, err := store.Get(storage.KeyPhoneAuthSession)
	require.NoError(t, err)
	assert.False(t, found, "record cleared on expiry")
	assert.Zero(t, m.RemainingSeconds())
}

func TestSecondChallengeCancelsFirstTimers(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMachine(&fakeAuth{sessionInfo: "sess-x"}, store, Config{
		Expiry:      100 * time.Millisecond,
		WarningLead: 60 * time.Millisecond,
	})

	rec := &stateRecorder{}
	m.SetStateListener(rec.record)

	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = m.IssueChallenge(context.Background(), "+15559876543")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.State() == StateExpired },
		400*time.Millisecond, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, rec.count(StateExpired), "only the second challenge may expire")
	assert.Equal(t, "+15559876543", m.PhoneNumber())
}

func TestVerifyRequiresActiveChallenge(t *testing.T) {
	m := newTestMachine(&fakeAuth{}, storage.NewMemoryStore(), Config{})

	_, _, err := m.Verify(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestVerifyRejectsBadCodeFormat(t *testing.T) {
	m := newTestMachine(&fakeAuth{sessionInfo: "s"}, storage.NewMemoryStore(), Config{})
	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, _, err := m.Verify(context.Background(), testPhone, code)
		assert.ErrorIs(t, err, ErrInvalidCodeFormat, "code %q", code)
	}
	// The challenge survives format failures.
	assert.Equal(t, StateActive, m.State())
}

func TestVerifyRejectsMismatchedPhone(t *testing.T) {
	m := newTestMachine(&fakeAuth{sessionInfo: "s"}, storage.NewMemoryStore(), Config{})
	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)

	_, _, err = m.Verify(context.Background(), "+15550000000", "123456")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestVerifySuccessClearsChallenge(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{
		sessionInfo: "sess-ok",
		user:        &models.User{ID: "u1", DisplayName: "Asha", IsVerified: true},
	}
	m := newTestMachine(auth, store, Config{})

	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)

	user, tokens, err := m.Verify(context.Background(), testPhone, "123456")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "id-tok", tokens.IDToken)
	assert.Equal(t, "sess-ok", auth.lastSession)

	assert.Equal(t, StateAbsent, m.State())
	_, found, err := store.Get(storage.KeyPhoneAuthSession)
	require.NoError(t, err)
	assert.False(t, found, "record removed after successful verify")
}

func TestVerifyServerExpiryForcesExpiredState(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := &fakeAuth{sessionInfo: "sess-e", verifyErr: api.ErrSessionExpired}
	m := newTestMachine(auth, store, Config{})

	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)

	_, _, err = m.Verify(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, api.ErrSessionExpired)
	assert.Equal(t, StateExpired, m.State())

	_, found, _ := store.Get(storage.KeyPhoneAuthSession)
	assert.False(t, found)
}

func TestResetCancelsChallenge(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newTestMachine(&fakeAuth{sessionInfo: "sess-r"}, store, Config{
		Expiry:      80 * time.Millisecond,
		WarningLead: 40 * time.Millisecond,
	})

	rec := &stateRecorder{}
	m.SetStateListener(rec.record)

	_, err := m.IssueChallenge(context.Background(), testPhone)
	require.NoError(t, err)
	m.Reset()

	assert.Equal(t, StateAbsent, m.State())
	_, found, _ := store.Get(storage.KeyPhoneAuthSession)
	assert.False(t, found)

	// Stale timers must not fire after reset.
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, rec.count(StateExpired))
	assert.Zero(t, rec.count(StateWarning))
}
