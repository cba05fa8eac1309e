package directory

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/myniax1024/exchange/internal/domain"
)

func TestRegisterME_RejectsEmptyCredentials(t *testing.T) {
	x := New(zerolog.Nop())
	status, err := x.RegisterME("me1", "http://me1", "")
	require.Error(t, err)
	require.Equal(t, domain.StatusMEAuthFailed, status)
}

func TestRegisterME_ThenDiscoverable(t *testing.T) {
	x := New(zerolog.Nop())
	status, err := x.RegisterME("me1", "http://me1", "secret")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccessful, status)

	addrs := x.DiscoverME()
	require.Equal(t, []string{"http://me1"}, addrs)
}

func TestRegisterClient_RejectsEmptyAuth(t *testing.T) {
	x := New(zerolog.Nop())
	status, addr := x.RegisterClient("alice", "")
	require.Equal(t, domain.StatusExchangeAuthFailed, status)
	require.Empty(t, addr)
}

func TestRegisterClient_FailsWithNoEngines(t *testing.T) {
	x := New(zerolog.Nop())
	status, addr := x.RegisterClient("alice", "token")
	require.Equal(t, domain.StatusAssignmentFailed, status)
	require.Empty(t, addr)
}

func TestRegisterClient_StickyAssignment(t *testing.T) {
	x := New(zerolog.Nop())
	_, _ = x.RegisterME("me1", "http://me1", "secret")
	_, _ = x.RegisterME("me2", "http://me2", "secret")

	status, addr := x.RegisterClient("alice", "token")
	require.Equal(t, domain.StatusSuccessfulAtExchange, status)
	require.NotEmpty(t, addr)

	for i := 0; i < 10; i++ {
		_, again := x.RegisterClient("alice", "token")
		require.Equal(t, addr, again)
	}
}
