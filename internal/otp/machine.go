package otp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"storefront-gateway/internal/api"
	"storefront-gateway/internal/captcha"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/storage"
)

// State of the phone verification challenge.
type State string

const (
	StateAbsent  State = "absent"
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

const (
	// DefaultExpiry is the client-side challenge lifetime. The
	// server's true expiry is around five minutes; the shorter bound
	// guarantees the verify call always lands before server expiry.
	DefaultExpiry = 4 * time.Minute

	// DefaultWarningLead is how long before expiry the Warning state
	// begins.
	DefaultWarningLead = time.Minute
)

var (
	ErrInvalidPhoneNumber = errors.New("phone number must be in E.164 format")
	ErrInvalidCodeFormat  = errors.New("verification code must be 6 digits")
	ErrNoActiveChallenge  = errors.New("no active verification challenge")
)

var (
	phoneRE = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	codeRE  = regexp.MustCompile(`^\d{6}$`)
)

// AuthAPI is the slice of the upstream client the machine needs.
type AuthAPI interface {
	SendCode(ctx context.Context, phoneNumber, proofToken string) (string, error)
	VerifyCode(ctx context.Context, phoneNumber, code, sessionInfo string) (*models.User, models.TokenPair, error)
}

// Config tunes the challenge timing. Zero values fall back to the
// defaults above.
type Config struct {
	Expiry      time.Duration
	WarningLead time.Duration
}

// Machine manages the one in-flight phone verification challenge. All
// timing lives here: callers never schedule their own timers and read
// the countdown through RemainingSeconds.
type Machine struct {
	mu       sync.Mutex
	api      AuthAPI
	verifier captcha.Verifier
	store    storage.Store

	expiry      time.Duration
	warningLead time.Duration
	now         func() time.Time

	state     State
	challenge *models.PhoneAuthSession

	warnTimer   *time.Timer
	expireTimer *time.Timer
	gen         int

	onChange func(State)
}

func NewMachine(authAPI AuthAPI, verifier captcha.Verifier, store storage.Store, cfg Config) *Machine {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.WarningLead <= 0 || cfg.WarningLead >= cfg.Expiry {
		cfg.WarningLead = DefaultWarningLead
	}
	return &Machine{
		api:         authAPI,
		verifier:    verifier,
		store:       store,
		expiry:      cfg.Expiry,
		warningLead: cfg.WarningLead,
		now:         time.Now,
		state:       StateAbsent,
	}
}

// SetStateListener registers a callback fired on every state
// transition. Must be set before the machine is used.
func (m *Machine) SetStateListener(fn func(State)) {
	m.onChange = fn
}

// State returns the current challenge state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PhoneNumber returns the number of the in-flight challenge, if any.
func (m *Machine) PhoneNumber() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return ""
	}
	return m.challenge.PhoneNumber
}

// RemainingSeconds is the derived countdown until the challenge
// expires. Zero when no challenge is in flight.
func (m *Machine) RemainingSeconds() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.challenge == nil || (m.state != StateActive && m.state != StateWarning) {
		return 0
	}
	remaining := m.challenge.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Round(time.Second).Seconds())
}

// IssueChallenge validates the phone number, obtains a
// human-verification proof, asks the upstream to send a code, and
// arms the warning and expiry timers. An already-active challenge is
// implicitly reset first; there is no queueing. Returns the challenge
// lifetime in seconds.
func (m *Machine) IssueChallenge(ctx context.Context, phoneNumber string) (int, error) {
	if !phoneRE.MatchString(phoneNumber) {
		return 0, ErrInvalidPhoneNumber
	}

	m.mu.Lock()
	if m.state == StateActive || m.state == StateWarning {
		log.Printf("[OTP] replacing active challenge for %s", m.challenge.PhoneNumber)
		m.resetLocked()
	}
	m.mu.Unlock()

	proof, err := m.verifier.Obtain(ctx)
	if err != nil {
		if errors.Is(err, captcha.ErrChallengeSetupFailed) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", captcha.ErrChallengeSetupFailed, err)
	}

	sessionInfo, err := m.api.SendCode(ctx, phoneNumber, proof)
	if err != nil {
		return 0, fmt.Errorf("failed to send verification code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.challenge = &models.PhoneAuthSession{
		SessionInfo: sessionInfo,
		PhoneNumber: phoneNumber,
		Timestamp:   now,
		ExpiresAt:   now.Add(m.expiry),
	}
	if err := storage.SetJSON(m.store, storage.KeyPhoneAuthSession, m.challenge); err != nil {
		return 0, fmt.Errorf("failed to persist challenge: %w", err)
	}

	m.setStateLocked(StateActive)
	m.armTimersLocked(m.expiry)
	metrics.OTPChallengesIssued.Inc()
	log.Printf("[OTP] challenge issued for %s, expires in %s", phoneNumber, m.expiry)

	return int(m.expiry.Seconds()), nil
}

// RestoreOnLoad rebuilds the challenge from the persisted record on
// process start so a reload mid-verification does not lose it. The
// timers are re-armed with their remaining delays. Returns the
// remaining seconds, zero when nothing was restored.
func (m *Machine) RestoreOnLoad() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &models.PhoneAuthSession{}
	found, err := storage.GetJSON(m.store, storage.KeyPhoneAuthSession, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to read challenge record: %w", err)
	}
	if !found {
		m.state = StateAbsent
		return 0, nil
	}

	remaining := rec.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		log.Printf("[OTP] discarding expired challenge for %s", rec.PhoneNumber)
		m.store.Delete(storage.KeyPhoneAuthSession)
		m.state = StateAbsent
		return 0, nil
	}

	m.challenge = rec
	if remaining <= m.warningLead {
		m.setStateLocked(StateWarning)
	} else {
		m.setStateLocked(StateActive)
	}
	m.armTimersLocked(remaining)
	log.Printf("[OTP] restored challenge for %s, %s remaining", rec.PhoneNumber, remaining.Round(time.Second))

	return int(remaining.Round(time.Second).Seconds()), nil
}

// Verify exchanges the entered code for an authenticated identity.
// The challenge must be Active or Warning and the code exactly six
// digits. A server-asserted expiry forces the Expired state regardless
// of the local timers.
func (m *Machine) Verify(ctx context.Context, phoneNumber, code string) (*models.User, models.TokenPair, error) {
	m.mu.Lock()
	if m.challenge == nil || (m.state != StateActive && m.state != StateWarning) {
		m.mu.Unlock()
		return nil, models.TokenPair{}, ErrNoActiveChallenge
	}
	if phoneNumber != m.challenge.PhoneNumber {
		m.mu.Unlock()
		return nil, models.TokenPair{}, ErrNoActiveChallenge
	}
	if !codeRE.MatchString(code) {
		m.mu.Unlock()
		return nil, models.TokenPair{}, ErrInvalidCodeFormat
	}
	sessionInfo := m.challenge.SessionInfo
	m.mu.Unlock()

	user, tokens, err := m.api.VerifyCode(ctx, phoneNumber, code, sessionInfo)
	if err != nil {
		if errors.Is(err, api.ErrSessionExpired) {
			m.mu.Lock()
			m.cancelTimersLocked()
			m.store.Delete(storage.KeyPhoneAuthSession)
			m.challenge = nil
			m.setStateLocked(StateExpired)
			m.mu.Unlock()
			metrics.OTPChallengesExpired.Inc()
		}
		return nil, models.TokenPair{}, err
	}

	m.mu.Lock()
	m.cancelTimersLocked()
	m.store.Delete(storage.KeyPhoneAuthSession)
	m.challenge = nil
	m.setStateLocked(StateAbsent)
	m.mu.Unlock()

	metrics.OTPChallengesVerified.Inc()
	log.Printf("[OTP] challenge verified for %s", phoneNumber)
	return user, tokens, nil
}

// Reset cancels the in-flight challenge: both timers are stopped and
// the persisted record removed.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Machine) resetLocked() {
	m.cancelTimersLocked()
	m.store.Delete(storage.KeyPhoneAuthSession)
	m.challenge = nil
	m.setStateLocked(StateAbsent)
}

// armTimersLocked schedules the warning and expiry callbacks for a
// challenge with the given remaining lifetime. The generation counter
// keeps a stale timer from firing against a state that has moved on.
func (m *Machine) armTimersLocked(remaining time.Duration) {
	m.gen++
	gen := m.gen

	if untilWarning := remaining - m.warningLead; untilWarning > 0 {
		m.warnTimer = time.AfterFunc(untilWarning, func() { m.warn(gen) })
	}
	m.expireTimer = time.AfterFunc(remaining, func() { m.expire(gen) })
}

func (m *Machine) warn(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateActive {
		return
	}
	m.setStateLocked(StateWarning)
	log.Printf("[OTP] challenge for %s expires in %s", m.challenge.PhoneNumber, m.warningLead)
}

func (m *Machine) expire(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || (m.state != StateActive && m.state != StateWarning) {
		return
	}
	phone := m.challenge.PhoneNumber
	m.store.Delete(storage.KeyPhoneAuthSession)
	m.challenge = nil
	m.setStateLocked(StateExpired)
	metrics.OTPChallengesExpired.Inc()
	log.Printf("[OTP] challenge for %s expired", phone)
}

func (m *Machine) cancelTimersLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expireTimer != nil {
		m.expireTimer.Stop()
		m.expireTimer = nil
	}
	m.gen++
}

func (m *Machine) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onChange != nil {
		fn := m.onChange
		go fn(s)
	}
}
