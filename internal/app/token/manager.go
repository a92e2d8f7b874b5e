package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// ErrNotRefreshable means the refresh token is absent or itself expired; the
// session is terminal until the host supplies a fresh credential.
var ErrNotRefreshable = errors.New("token: credential is not refreshable")

// Refresher is the slice of the transport the manager needs.
type Refresher interface {
	RefreshCredential(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// Manager holds the active credential pair, answers usability queries, and
// proactively refreshes the access token shortly before it expires.
type Manager struct {
	transport Refresher
	obs       ports.Observability
	lead      time.Duration
	now       func() time.Time

	mu          sync.Mutex
	cred        domain.Credential
	expiry      time.Time
	maxExpiry   time.Time
	timer       *time.Timer
	nextRefresh time.Time
}

func NewManager(transport Refresher, obs ports.Observability, lead time.Duration) *Manager {
	if lead <= 0 {
		lead = 30 * time.Second
	}
	return &Manager{
		transport: transport,
		obs:       obs,
		lead:      lead,
		now:       time.Now,
	}
}

// SetCredential replaces the active pair, cancels any scheduled refresh, and
// schedules a new one-shot refresh `lead` before access expiry (clamped to
// fire immediately when already past). An expired, non-refreshable pair is a
// dead session and raises a user-visible notification.
func (m *Manager) SetCredential(cred domain.Credential) {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cred = cred
	m.expiry = decodeExpiry(cred.AccessToken)
	m.maxExpiry = decodeExpiry(cred.RefreshToken)

	now := m.now()
	expired := !now.Before(m.expiry)
	refreshable := cred.RefreshToken != "" && now.Before(m.maxExpiry)

	delay := m.expiry.Sub(now) - m.lead
	if delay < 0 {
		delay = 0
	}
	m.nextRefresh = now.Add(delay)
	m.timer = time.AfterFunc(delay, m.refreshNow)
	m.mu.Unlock()

	if expired && !refreshable {
		m.obs.Notify(domain.LevelError, "SESSION_EXPIRED")
	}
}

// Credential returns a copy of the active pair.
func (m *Manager) Credential() domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

// Access returns the current access token.
func (m *Manager) Access() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.AccessToken
}

// Expired reports whether the access token can no longer authorise calls.
func (m *Manager) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.now().Before(m.expiry)
}

// Refreshable reports whether a refresh attempt could still succeed.
func (m *Manager) Refreshable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.RefreshToken != "" && m.now().Before(m.maxExpiry)
}

// NeedRefresh reports whether access expiry falls within the given window.
func (m *Manager) NeedRefresh(within time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry.Sub(m.now()) < within
}

// Refresh exchanges the pair at the refresh endpoint and installs the result.
// Transport-level retries cover transient failures; an exhausted refresh
// surfaces a generic delivery error to the caller.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	cred := m.cred
	refreshable := cred.RefreshToken != "" && m.now().Before(m.maxExpiry)
	m.mu.Unlock()

	if !refreshable {
		return ErrNotRefreshable
	}
	next, err := m.transport.RefreshCredential(ctx, cred)
	if err != nil {
		return fmt.Errorf("token: refresh failed: %w", err)
	}
	m.SetCredential(next)
	return nil
}

// Stop cancels any scheduled refresh.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) refreshNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Refresh(ctx); err != nil {
		m.obs.LogError("token_refresh_failed", err)
	}
}

// decodeExpiry extracts the exp claim without verifying the signature: the
// relay holds no signing keys and only needs the timestamp. Any decode
// failure fails soft to the zero time, i.e. already expired.
func decodeExpiry(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
