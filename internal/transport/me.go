// Package transport exposes the match engine's and exchange's HTTP/JSON
// surfaces via gin, translating wire requests into calls against the
// match-engine actor, the cancellation path, the fill queue, and (on the
// exchange process) the directory.
package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/myniax1024/exchange/internal/domain"
	"github.com/myniax1024/exchange/internal/fillqueue"
	"github.com/myniax1024/exchange/internal/marketdata"
	"github.com/myniax1024/exchange/internal/matchengine"
	"github.com/myniax1024/exchange/internal/ordermanager"
	"github.com/myniax1024/exchange/internal/synchronizer"
)

// MEServer exposes one match engine's client-facing and ME-to-ME routes.
type MEServer struct {
	engine    *matchengine.Engine
	sync      *synchronizer.Synchronizer
	fills     *fillqueue.Queue
	wallet    *ordermanager.Manager
	publisher *marketdata.Publisher
	log       zerolog.Logger
}

// NewMEServer creates a MEServer. wallet/publisher may be nil, in which case
// the wallet and market-data routes report 503.
func NewMEServer(engine *matchengine.Engine, sync *synchronizer.Synchronizer, fills *fillqueue.Queue, wallet *ordermanager.Manager, publisher *marketdata.Publisher, log zerolog.Logger) *MEServer {
	return &MEServer{engine: engine, sync: sync, fills: fills, wallet: wallet, publisher: publisher, log: log}
}

// RegisterRoutes mounts both the client-facing (/v1) and ME-to-ME
// (/internal/v1) route groups on r.
func (s *MEServer) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/v1")
	{
		v1.POST("/order", s.submitOrder)
		v1.DELETE("/order/:id", s.cancelOrder)
		v1.GET("/fills", s.getFills)
		v1.GET("/orderbook", s.getOrderBook)
		v1.GET("/execution", s.getExecutions)
		v1.GET("/marketdata/candles", s.getCandles)
		v1.GET("/wallet/balances", s.getBalances)
		v1.POST("/wallet/init", s.initWallet)
	}

	internal := r.Group("/internal/v1")
	{
		internal.GET("/orderbook", s.peerGetOrderBook)
		internal.POST("/order", s.peerSubmitOrder)
		internal.POST("/fill", s.peerPutFill)
		internal.POST("/orderbook/broadcast", s.peerBroadcastOrderbook)
		internal.POST("/order/:id/cancel", s.peerCancelOrder)
	}
}

func (s *MEServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "matchengine"})
}

// submitOrder handles POST /v1/order: a client submitting a new order to
// this engine.
func (s *MEServer) submitOrder(c *gin.Context) {
	var req domain.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.SubmitOrderResponse{Status: domain.StatusError, ErrorMessage: err.Error()})
		return
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		c.JSON(http.StatusBadRequest, domain.SubmitOrderResponse{Status: domain.StatusError, ErrorMessage: "side must be BUY or SELL"})
		return
	}

	order := fromOrderRequest(&req, s.selfAddr())
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	order.RemainingQuantity = order.Quantity
	order.Status = domain.OrderStatusNew
	order.Timestamp = time.Now()

	result, err := s.engine.SubmitOrder(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.SubmitOrderResponse{Status: domain.StatusError, ErrorMessage: err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.SubmitOrderResponse{OrderID: result.OrderID, Status: domain.StatusSuccess})
}

// cancelOrder handles DELETE /v1/order/:id: a client-initiated cancel.
func (s *MEServer) cancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	clientID := c.Query("client_id")
	symbol := c.Query("symbol")

	order := &domain.Order{OrderID: orderID, ClientID: clientID, Symbol: symbol, EngineOriginAddr: s.selfAddr()}
	ok, qty, err := s.engine.CancelOrder(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.CancelOrderResponse{OrderID: orderID, Status: domain.StatusFailed})
		return
	}
	status := domain.StatusFailed
	if ok {
		status = domain.StatusSuccessful
	}
	c.JSON(http.StatusOK, domain.CancelOrderResponse{OrderID: orderID, Status: status, QuantityCancelled: qty})
}

// getFills handles GET /v1/fills: pull-until-empty drain of a client's
// queued fills.
func (s *MEServer) getFills(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return
	}
	c.JSON(http.StatusOK, domain.FillsResponse{Fills: s.fills.Drain(clientID)})
}

// getOrderBook handles GET /v1/orderbook: a client-facing L2 snapshot.
func (s *MEServer) getOrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	snap, err := s.engine.Snapshot(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.GetOrderBookResponse{Symbol: snap.Symbol, Bids: snap.Bids, Asks: snap.Asks})
}

// peerGetOrderBook handles GET /internal/v1/orderbook: a peer ME's
// authoritative BBO probe.
func (s *MEServer) peerGetOrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	snap, err := s.engine.Snapshot(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.GetOrderBookResponse{Symbol: snap.Symbol, Bids: snap.Bids, Asks: snap.Asks})
}

// peerSubmitOrder handles POST /internal/v1/order: an order routed in from
// a peer engine because this engine held the better contra-side price. It
// is matched locally only — never re-routed, per the single-hop invariant.
func (s *MEServer) peerSubmitOrder(c *gin.Context) {
	var req domain.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.SubmitOrderResponse{Status: domain.StatusError, ErrorMessage: err.Error()})
		return
	}

	order := fromOrderRequest(&req, req.EngineOriginAddr)
	if order.RemainingQuantity == 0 {
		order.RemainingQuantity = order.Quantity
	}

	result, err := s.engine.RouteOrderIn(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.SubmitOrderResponse{Status: domain.StatusError, ErrorMessage: err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.SubmitOrderResponse{OrderID: result.OrderID, Status: domain.StatusSuccess})
}

// peerPutFill handles POST /internal/v1/fill: a fill routed home from the
// engine that produced it.
func (s *MEServer) peerPutFill(c *gin.Context) {
	var req domain.PutFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.PutFillResponse{Status: domain.StatusFailed})
		return
	}
	s.fills.Enqueue(req.ClientID, &req.Fill)
	c.JSON(http.StatusOK, domain.PutFillResponse{Status: domain.StatusAccepted})
}

// peerBroadcastOrderbook handles POST /internal/v1/orderbook/broadcast: the
// advisory, sequence-numbered book update from a peer.
func (s *MEServer) peerBroadcastOrderbook(c *gin.Context) {
	var req domain.BroadcastOrderbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.sync.ApplyUpdate(&req)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// peerCancelOrder handles POST /internal/v1/order/:id/cancel: a cancel
// forwarded in from a peer engine. This resolves against the local book
// only and never forwards again, enforcing the single-hop invariant from
// the receiving side.
func (s *MEServer) peerCancelOrder(c *gin.Context) {
	var req domain.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.CancelOrderResponse{Status: domain.StatusFailed})
		return
	}

	order := fromOrderRequest(&req.OrderRecord, "")
	order.OrderID = req.OrderID
	order.ClientID = req.ClientID

	ok, qty, err := s.engine.ResolveLocalCancel(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.CancelOrderResponse{OrderID: req.OrderID, Status: domain.StatusFailed})
		return
	}
	status := domain.StatusFailed
	if ok {
		status = domain.StatusSuccessful
	}
	c.JSON(http.StatusOK, domain.CancelOrderResponse{OrderID: req.OrderID, Status: status, QuantityCancelled: qty})
}

// getExecutions handles GET /v1/execution: the execution log, optionally
// filtered by symbol, order id, and a since timestamp.
func (s *MEServer) getExecutions(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data not enabled"})
		return
	}

	symbol := c.Query("symbol")
	orderID := c.Query("order_id")
	sinceStr := c.Query("since")

	var since time.Time
	if sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since format, use RFC3339"})
			return
		}
		since = parsed
	}

	executions := s.publisher.GetExecutions(symbol, orderID, since)
	if executions == nil {
		executions = []*domain.Execution{}
	}
	c.JSON(http.StatusOK, executions)
}

// getCandles handles GET /v1/marketdata/candles.
func (s *MEServer) getCandles(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data not enabled"})
		return
	}

	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		count = 100
	}

	candles := s.publisher.GetCandles(symbol, count)
	if candles == nil {
		candles = []*domain.Candlestick{}
	}
	c.JSON(http.StatusOK, candles)
}

// initWalletRequest is the request body for initializing a wallet.
type initWalletRequest struct {
	UserID      string           `json:"user_id" binding:"required"`
	CashBalance int64            `json:"cash_balance" binding:"required"`
	Holdings    map[string]int64 `json:"holdings"`
}

// initWallet handles POST /v1/wallet/init.
func (s *MEServer) initWallet(c *gin.Context) {
	if s.wallet == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet not enabled"})
		return
	}

	var req initWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Holdings == nil {
		req.Holdings = make(map[string]int64)
	}

	s.wallet.InitWallet(req.UserID, req.CashBalance, req.Holdings)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "user_id": req.UserID})
}

// getBalances handles GET /v1/wallet/balances.
func (s *MEServer) getBalances(c *gin.Context) {
	if s.wallet == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet not enabled"})
		return
	}

	userID := c.Query("user_id")
	if userID != "" {
		wallet := s.wallet.GetWallet(userID)
		if wallet == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":      userID,
			"cash_balance": wallet.CashBalance,
			"holdings":     wallet.Holdings,
		})
		return
	}

	wallets := s.wallet.GetAllWallets()
	result := make([]gin.H, 0, len(wallets))
	for uid, w := range wallets {
		result = append(result, gin.H{
			"user_id":      uid,
			"cash_balance": w.CashBalance,
			"holdings":     w.Holdings,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (s *MEServer) selfAddr() string {
	return s.engine.SelfAddr()
}

func fromOrderRequest(req *domain.OrderRequest, originAddr string) *domain.Order {
	origin := req.EngineOriginAddr
	if origin == "" {
		origin = originAddr
	}
	return &domain.Order{
		OrderID:           req.OrderID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Price:             req.Price,
		Quantity:          req.Quantity,
		RemainingQuantity: req.RemainingQuantity,
		ClientID:          req.ClientID,
		EngineOriginAddr:  origin,
		Timestamp:         time.Now(),
	}
}
