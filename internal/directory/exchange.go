// Package directory implements the Exchange's view of the cluster: the
// registry of match engines and the client-to-engine assignment made at
// registration time.
package directory

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/domain"
)

// Exchange tracks registered match engines and the engine each client was
// assigned to. It performs no real authentication: any non-empty
// credential is accepted, mirroring the accept-all auth stub the original
// system used (see SPEC_FULL.md §7).
type Exchange struct {
	mu sync.RWMutex

	engines       map[string]string // engineID -> engineAddr
	clientEngine  map[string]string // clientID -> assigned engine addr
	log           zerolog.Logger
}

// New creates an empty Exchange directory.
func New(log zerolog.Logger) *Exchange {
	return &Exchange{
		engines:      make(map[string]string),
		clientEngine: make(map[string]string),
		log:          log,
	}
}

// RegisterME adds an engine to the directory, or updates its address if it
// re-registers under the same engine id.
func (x *Exchange) RegisterME(engineID, engineAddr, credentials string) (string, error) {
	if credentials == "" {
		return domain.StatusMEAuthFailed, fmt.Errorf("missing engine credentials")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.engines[engineID] = engineAddr
	x.log.Info().Str("engine_id", engineID).Str("addr", engineAddr).Msg("match engine registered")
	return domain.StatusSuccessful, nil
}

// DiscoverME returns the address of every currently registered engine,
// for a newly-joined engine to build its peer set against.
func (x *Exchange) DiscoverME() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	addrs := make([]string, 0, len(x.engines))
	for _, addr := range x.engines {
		addrs = append(addrs, addr)
	}
	return addrs
}

// RegisterClient authenticates a client and assigns it to a match engine,
// uniformly at random among those currently registered. The assignment is
// sticky: a client that re-registers gets back the same engine it was
// already assigned to.
func (x *Exchange) RegisterClient(clientID, auth string) (status, engineAddr string) {
	if auth == "" {
		return domain.StatusExchangeAuthFailed, ""
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if addr, ok := x.clientEngine[clientID]; ok {
		return domain.StatusSuccessfulAtExchange, addr
	}

	if len(x.engines) == 0 {
		return domain.StatusAssignmentFailed, ""
	}

	addrs := make([]string, 0, len(x.engines))
	for _, addr := range x.engines {
		addrs = append(addrs, addr)
	}
	chosen := addrs[rand.IntN(len(addrs))]
	x.clientEngine[clientID] = chosen
	x.log.Info().Str("client_id", clientID).Str("engine_addr", chosen).Msg("client assigned to match engine")
	return domain.StatusSuccessfulAtExchange, chosen
}
