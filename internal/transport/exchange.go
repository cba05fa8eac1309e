package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/directory"
	"github.com/myniax1024/exchange/internal/domain"
)

// ExchangeServer exposes the exchange's client-registration and
// engine-directory routes.
type ExchangeServer struct {
	dir *directory.Exchange
	log zerolog.Logger
}

// NewExchangeServer creates an ExchangeServer.
func NewExchangeServer(dir *directory.Exchange, log zerolog.Logger) *ExchangeServer {
	return &ExchangeServer{dir: dir, log: log}
}

// RegisterRoutes mounts the exchange's routes on r.
func (s *ExchangeServer) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/v1")
	{
		v1.POST("/exchange/register", s.registerClient)
	}

	dir := r.Group("/v1/directory")
	{
		dir.POST("/register-me", s.registerME)
		dir.GET("/discover", s.discoverME)
	}
}

func (s *ExchangeServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "exchange"})
}

// registerClient handles POST /v1/exchange/register.
func (s *ExchangeServer) registerClient(c *gin.Context) {
	var req domain.RegisterClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.RegisterClientResponse{Status: domain.StatusExchangeAuthFailed})
		return
	}

	status, addr := s.dir.RegisterClient(req.ClientID, req.Auth)
	c.JSON(http.StatusOK, domain.RegisterClientResponse{Status: status, MatchEngineAddress: addr})
}

// registerME handles POST /v1/directory/register-me: a match engine
// announcing itself to the exchange on startup.
func (s *ExchangeServer) registerME(c *gin.Context) {
	var req domain.RegisterMERequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.RegisterMEResponse{Status: domain.StatusMEAuthFailed})
		return
	}

	status, err := s.dir.RegisterME(req.EngineID, req.EngineAddr, req.Credentials)
	if err != nil {
		s.log.Warn().Err(err).Str("engine_id", req.EngineID).Msg("match engine registration rejected")
	}
	c.JSON(http.StatusOK, domain.RegisterMEResponse{Status: status})
}

// discoverME handles GET /v1/directory/discover: the set of currently
// registered engine addresses, for peer-set bootstrapping.
func (s *ExchangeServer) discoverME(c *gin.Context) {
	addrs := s.dir.DiscoverME()
	c.JSON(http.StatusOK, domain.DiscoverMEResponse{Status: domain.StatusSuccessful, EngineAddresses: addrs})
}
