package security

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmission_Allow(t *testing.T) {
	a := NewAdmission(t.Context(), AdmissionConfig{
		RequestsPerSecond: 0.001,
		Burst:             2,
		Deny:              []string{"10.0.0.3", "2001:0db8::0001"},
	}, quiet)

	assert.NoError(t, a.Allow("10.0.0.1"))
	assert.NoError(t, a.Allow("10.0.0.1"))
	assert.ErrorIs(t, a.Allow("10.0.0.1"), ErrRateLimited)
	assert.NoError(t, a.Allow("10.0.0.2"))

	assert.ErrorIs(t, a.Allow("10.0.0.3"), ErrBlocked)
	assert.ErrorIs(t, a.Allow(HostOf(&net.TCPAddr{IP: net.ParseIP("2001:db8::1")})), ErrBlocked)
}

func TestAdmission_NoLimitsByDefault(t *testing.T) {
	a := NewAdmission(t.Context(), AdmissionConfig{}, nil)

	for range 100 {
		assert.NoError(t, a.Allow("10.0.0.1"))
	}

	for range 100 {
		a.RecordFailure("10.0.0.1")
	}
	assert.NoError(t, a.Allow("10.0.0.1"), "failures never block without a threshold")
}

func TestAdmission_FailureThreshold(t *testing.T) {
	a := NewAdmission(t.Context(), AdmissionConfig{FailureThreshold: 3, BlockDuration: time.Hour}, quiet)
	ip := "10.0.0.1"

	a.RecordFailure(ip)
	a.RecordFailure(ip)
	assert.NoError(t, a.Allow(ip))

	// a success in between starts the count again
	a.RecordSuccess(ip)
	a.RecordFailure(ip)
	a.RecordFailure(ip)
	assert.NoError(t, a.Allow(ip))

	a.RecordFailure(ip)
	assert.ErrorIs(t, a.Allow(ip), ErrBlocked)
}

func trackedFailures(a *Admission) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures)
}

func TestAdmission_FailuresExpire(t *testing.T) {
	a := NewAdmission(t.Context(), AdmissionConfig{
		FailureThreshold: 2,
		BlockDuration:    time.Hour,
		FailureWindow:    time.Minute,
	}, quiet)

	for i := range 1000 {
		a.RecordFailure(fmt.Sprintf("2001:db8::%x", i))
	}
	assert.Equal(t, 1000, trackedFailures(a))

	a.sweep(time.Now())
	assert.Equal(t, 1000, trackedFailures(a), "recent failures are kept")

	a.sweep(time.Now().Add(2 * time.Minute))
	assert.Zero(t, trackedFailures(a))
}

func TestAdmission_StaleFailureStartsOver(t *testing.T) {
	a := NewAdmission(t.Context(), AdmissionConfig{
		FailureThreshold: 2,
		BlockDuration:    time.Hour,
		FailureWindow:    time.Minute,
	}, quiet)
	ip := "10.0.0.1"

	a.RecordFailure(ip)

	a.mu.Lock()
	a.failures[ip].last = time.Now().Add(-2 * time.Minute)
	a.mu.Unlock()

	a.RecordFailure(ip)
	assert.NoError(t, a.Allow(ip), "an old failure does not count toward the threshold")

	a.RecordFailure(ip)
	assert.ErrorIs(t, a.Allow(ip), ErrBlocked)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "127.0.0.1", HostOf(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 443}))
	assert.Equal(t, "::1", HostOf(&net.TCPAddr{IP: net.IPv6loopback, Port: 443}))
	assert.Equal(t, "pipe", HostOf(pipeAddr{}))
	assert.Empty(t, HostOf(nil))
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
