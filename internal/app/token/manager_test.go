package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

type mockObs struct {
	errors  []error
	notices []string
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(string, float64)                {}
func (m *mockObs) ObserveLatency(string, float64)            {}
func (m *mockObs) SetGauge(string, float64)                  {}
func (m *mockObs) SetNetworkStatus(domain.NetworkStatus)     {}
func (m *mockObs) Notify(_ domain.AlertLevel, code string)   { m.notices = append(m.notices, code) }
func (m *mockObs) RecordDrop(string, uint64, error)          {}

type mockRefresher struct {
	calls int
	next  domain.Credential
	err   error
}

func (m *mockRefresher) RefreshCredential(_ context.Context, _ domain.Credential) (domain.Credential, error) {
	m.calls++
	if m.err != nil {
		return domain.Credential{}, m.err
	}
	return m.next, nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestSetCredentialSchedulesRefreshBeforeExpiry(t *testing.T) {
	m := NewManager(&mockRefresher{}, &mockObs{}, 30*time.Second)
	defer m.Stop()

	now := time.Now()
	m.SetCredential(domain.Credential{
		AccessToken:  signedToken(t, now.Add(60*time.Second)),
		RefreshToken: signedToken(t, now.Add(time.Hour)),
	})

	if m.Expired() {
		t.Fatalf("fresh credential should not be expired")
	}
	if !m.Refreshable() {
		t.Fatalf("credential with live refresh token should be refreshable")
	}

	want := now.Add(30 * time.Second)
	m.mu.Lock()
	got := m.nextRefresh
	m.mu.Unlock()
	if got.Before(want.Add(-2*time.Second)) || got.After(want.Add(2*time.Second)) {
		t.Fatalf("expected refresh around %v, scheduled for %v", want, got)
	}
}

func TestRefreshFiresExactlyOneCall(t *testing.T) {
	now := time.Now()
	next := domain.Credential{
		AccessToken:  signedToken(t, now.Add(2*time.Hour)),
		RefreshToken: signedToken(t, now.Add(4*time.Hour)),
	}
	refresher := &mockRefresher{next: next}
	m := NewManager(refresher, &mockObs{}, 30*time.Second)
	defer m.Stop()

	m.SetCredential(domain.Credential{
		AccessToken:  signedToken(t, now.Add(time.Hour)),
		RefreshToken: signedToken(t, now.Add(2*time.Hour)),
	})

	m.refreshNow()
	if refresher.calls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", refresher.calls)
	}
	if m.Access() != next.AccessToken {
		t.Fatalf("expected new access token to be installed")
	}
}

func TestExpiredRefreshableCredentialRefreshes(t *testing.T) {
	now := time.Now()
	refresher := &mockRefresher{next: domain.Credential{
		AccessToken:  signedToken(t, now.Add(time.Hour)),
		RefreshToken: signedToken(t, now.Add(2*time.Hour)),
	}}
	m := NewManager(refresher, &mockObs{}, 30*time.Second)
	defer m.Stop()

	m.SetCredential(domain.Credential{
		AccessToken:  signedToken(t, now.Add(-time.Minute)),
		RefreshToken: signedToken(t, now.Add(time.Hour)),
	})
	if !m.Expired() {
		t.Fatalf("expected expired access token")
	}

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if m.Expired() {
		t.Fatalf("expected live credential after refresh")
	}
}

func TestDeadSessionNotifiesAndRefusesRefresh(t *testing.T) {
	obs := &mockObs{}
	m := NewManager(&mockRefresher{}, obs, 30*time.Second)
	defer m.Stop()

	now := time.Now()
	m.SetCredential(domain.Credential{
		AccessToken:  signedToken(t, now.Add(-time.Hour)),
		RefreshToken: signedToken(t, now.Add(-time.Minute)),
	})

	if len(obs.notices) != 1 || obs.notices[0] != "SESSION_EXPIRED" {
		t.Fatalf("expected SESSION_EXPIRED notification, got %v", obs.notices)
	}
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrNotRefreshable) {
		t.Fatalf("expected ErrNotRefreshable, got %v", err)
	}
}

func TestMalformedTokenFailsSoftToExpired(t *testing.T) {
	m := NewManager(&mockRefresher{}, &mockObs{}, 30*time.Second)
	defer m.Stop()

	m.SetCredential(domain.Credential{AccessToken: "not-a-jwt"})
	if !m.Expired() {
		t.Fatalf("undecodable token must read as expired")
	}
	if m.Refreshable() {
		t.Fatalf("missing refresh token must not be refreshable")
	}
}

func TestRefreshSurfacesTransportFailure(t *testing.T) {
	refresher := &mockRefresher{err: errors.New("upstream down")}
	m := NewManager(refresher, &mockObs{}, 30*time.Second)
	defer m.Stop()

	now := time.Now()
	m.SetCredential(domain.Credential{
		AccessToken:  signedToken(t, now.Add(time.Hour)),
		RefreshToken: signedToken(t, now.Add(2*time.Hour)),
	})

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error when transport fails")
	}
}
