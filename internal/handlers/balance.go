package handlers

import (
	"net/http"

	"solana-ledger-gateway/internal/address"
	"solana-ledger-gateway/internal/models"
	"solana-ledger-gateway/internal/services"
	"solana-ledger-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BalanceHandler handles balance-related HTTP requests
type BalanceHandler struct {
	ledgerService services.LedgerServiceInterface
}

// NewBalanceHandler creates a new BalanceHandler instance
func NewBalanceHandler(ledgerService services.LedgerServiceInterface) *BalanceHandler {
	return &BalanceHandler{
		ledgerService: ledgerService,
	}
}

// GetBalance handles GET /balance/:address requests
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	raw := c.Param("address")
	addr, err := address.Parse(raw)
	if err != nil {
		models.HandleError(c, models.NewInvalidAddressError(raw, err), log)
		return
	}

	log.Debug("Processing balance request", zap.String("wallet_address", raw))

	record, err := h.ledgerService.GetBalance(c.Request.Context(), addr)
	if err != nil {
		models.HandleError(c, err, log)
		return
	}

	log.Info("Balance request completed successfully",
		zap.String("wallet_address", raw),
		zap.Uint64("lamports", record.Lamports),
	)

	c.JSON(http.StatusOK, record)
}
