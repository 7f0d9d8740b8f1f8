package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/creditmarket/pkg/market"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorUnauthorized        = "unauthorized"
	errorInvalidParameter    = "invalid_parameter"
	errorInvalidAmount       = "invalid_amount"
	errorInvalidPrice        = "invalid_price"
	errorInvalidAccountID    = "invalid_account_id"
	errorInsufficientBalance = "insufficient_balance"
	errorSameAccountConflict = "same_account_conflict"
	errorReserveLimit        = "reserve_limit_exceeded"
	errorInvalidRequestBody  = "invalid_request_body"
	errorInvalidListLimit    = "invalid_list_limit"
	errorInternal            = "internal_error"

	defaultJournalLimit = 50
	maxJournalLimit     = 200
)

// Run boots the HTTP façade and serves until the context is cancelled.
func Run(ctx context.Context, cfg Config, engine *market.Engine, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	router := NewRouter(cfg, engine)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketd listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin routes over the engine.
func NewRouter(cfg Config, engine *market.Engine) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := &httpHandler{engine: engine}

	api := router.Group("/api")
	api.Use(bearerAuth([]byte(cfg.SigningKey), cfg.Issuer))

	api.GET("/config", handler.handleGetConfig)
	api.PUT("/config/price", handler.handleSetPrice)
	api.PUT("/config/fee-percent", handler.handleSetFeePercent)
	api.PUT("/config/refund-percent", handler.handleSetRefundPercent)
	api.PUT("/config/reserve-limit", handler.handleSetReserveLimit)
	api.GET("/reserve", handler.handleGetReserve)
	api.GET("/balance", handler.handleGetBalance)
	api.GET("/listings/:seller", handler.handleGetListing)
	api.POST("/listings", handler.handleAddForSale)
	api.POST("/listings/withdraw", handler.handleRemoveFromSale)
	api.POST("/purchases", handler.handleBuyFromSeller)
	api.GET("/journal", handler.handleJournal)

	return router
}

type httpHandler struct {
	engine *market.Engine
}

type configResponse struct {
	CreditPrice   int64 `json:"credit_price"`
	FeePercent    int64 `json:"fee_percent"`
	RefundPercent int64 `json:"refund_percent"`
	ReserveLimit  int64 `json:"reserve_limit"`
}

type priceRequest struct {
	Price int64 `json:"price"`
}

type percentRequest struct {
	Percent int64 `json:"percent"`
}

type limitRequest struct {
	Limit int64 `json:"limit"`
}

type listingRequest struct {
	Amount int64 `json:"amount"`
	Price  int64 `json:"price"`
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

type purchaseRequest struct {
	Seller string `json:"seller"`
	Amount int64  `json:"amount"`
}

type balanceResponse struct {
	Credits int64 `json:"credits"`
	Native  int64 `json:"native"`
}

type listingResponse struct {
	Seller string `json:"seller"`
	Amount int64  `json:"amount"`
	Price  int64  `json:"price"`
}

type journalEntryResponse struct {
	EntryID        string `json:"entry_id"`
	Operation      string `json:"operation"`
	Actor          string `json:"actor"`
	Counterparty   string `json:"counterparty,omitempty"`
	CreditAmount   int64  `json:"credit_amount"`
	NativeAmount   int64  `json:"native_amount"`
	FeeAmount      int64  `json:"fee_amount"`
	MetadataJSON   string `json:"metadata_json"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func (handler *httpHandler) handleGetConfig(ctx *gin.Context) {
	config, err := handler.engine.Config(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, configResponse{
		CreditPrice:   config.CreditPrice,
		FeePercent:    config.FeePercent,
		RefundPercent: config.RefundPercent,
		ReserveLimit:  config.ReserveLimit,
	})
}

func (handler *httpHandler) handleSetPrice(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request priceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.SetCreditPrice(ctx.Request.Context(), caller, request.Price); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleSetFeePercent(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request percentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.SetFeePercent(ctx.Request.Context(), caller, request.Percent); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleSetRefundPercent(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request percentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.SetRefundPercent(ctx.Request.Context(), caller, request.Percent); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleSetReserveLimit(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request limitRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.SetReserveLimit(ctx.Request.Context(), caller, request.Limit); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleGetReserve(ctx *gin.Context) {
	reserve, err := handler.engine.Reserve(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"current_amount": reserve.CurrentAmount})
}

func (handler *httpHandler) handleGetBalance(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	balance, err := handler.engine.BalanceOf(ctx.Request.Context(), caller)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, balanceResponse{Credits: balance.Credits, Native: balance.Native})
}

func (handler *httpHandler) handleGetListing(ctx *gin.Context) {
	seller, err := market.NewAccountID(ctx.Param("seller"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	listing, err := handler.engine.ListingOf(ctx.Request.Context(), seller)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, listingResponse{Seller: seller.String(), Amount: listing.Amount, Price: listing.Price})
}

func (handler *httpHandler) handleAddForSale(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request listingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.AddForSale(ctx.Request.Context(), caller, request.Amount, request.Price); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRemoveFromSale(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request withdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	if err := handler.engine.RemoveFromSale(ctx.Request.Context(), caller, request.Amount); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleBuyFromSeller(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	seller, err := market.NewAccountID(request.Seller)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if err := handler.engine.BuyFromSeller(ctx.Request.Context(), caller, seller, request.Amount); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleJournal(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
		return
	}
	limit, err := normalizeJournalLimit(ctx.DefaultQuery("limit", "0"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidListLimit})
		return
	}
	before, err := parseInt64Query(ctx.DefaultQuery("before", "0"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequestBody})
		return
	}
	entries, err := handler.engine.History(ctx.Request.Context(), caller, before, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	response := make([]journalEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, journalEntryResponse{
			EntryID:        entry.EntryID,
			Operation:      entry.Operation,
			Actor:          entry.ActorID,
			Counterparty:   entry.CounterpartyID,
			CreditAmount:   entry.CreditAmount,
			NativeAmount:   entry.NativeAmount,
			FeeAmount:      entry.FeeAmount,
			MetadataJSON:   entry.MetadataJSON,
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": response})
}

func respondError(ctx *gin.Context, err error) {
	status, code := mapError(err)
	ctx.JSON(status, gin.H{"error": code})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusForbidden, errorUnauthorized
	case errors.Is(err, market.ErrInvalidParameter):
		return http.StatusBadRequest, errorInvalidParameter
	case errors.Is(err, market.ErrInvalidAmount):
		return http.StatusBadRequest, errorInvalidAmount
	case errors.Is(err, market.ErrInvalidPrice):
		return http.StatusBadRequest, errorInvalidPrice
	case errors.Is(err, market.ErrInvalidAccountID):
		return http.StatusBadRequest, errorInvalidAccountID
	case errors.Is(err, market.ErrInsufficientBalance):
		return http.StatusConflict, errorInsufficientBalance
	case errors.Is(err, market.ErrSameAccountConflict):
		return http.StatusConflict, errorSameAccountConflict
	case errors.Is(err, market.ErrReserveLimitExceeded):
		return http.StatusConflict, errorReserveLimit
	default:
		return http.StatusInternalServerError, errorInternal
	}
}

func normalizeJournalLimit(raw string) (int, error) {
	limit, err := parseInt64Query(raw)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return defaultJournalLimit, nil
	}
	if limit > maxJournalLimit {
		return 0, errors.New("limit exceeds maximum")
	}
	return int(limit), nil
}

func parseInt64Query(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
