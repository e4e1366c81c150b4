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

// TxHandler serves transaction signature history
type TxHandler struct {
	ledgerService services.LedgerServiceInterface
}

// NewTxHandler creates a new TxHandler instance
func NewTxHandler(ledgerService services.LedgerServiceInterface) *TxHandler {
	return &TxHandler{
		ledgerService: ledgerService,
	}
}

// GetTxHistory handles GET /txs/:address requests
func (h *TxHandler) GetTxHistory(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	raw := c.Param("address")
	addr, err := address.Parse(raw)
	if err != nil {
		models.HandleError(c, models.NewInvalidAddressError(raw, err), log)
		return
	}

	records, err := h.ledgerService.GetTxHistory(c.Request.Context(), addr)
	if err != nil {
		models.HandleError(c, err, log)
		return
	}
	if records == nil {
		records = []models.SignatureRecord{}
	}

	log.Info("Signature history request completed successfully",
		zap.String("wallet_address", raw),
		zap.Int("signature_count", len(records)),
	)

	c.JSON(http.StatusOK, records)
}
