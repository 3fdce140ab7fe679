package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// VoucherHandler serves settlement voucher lookups so winners can fetch the
// signed proof of their payout.
type VoucherHandler struct {
	vouchers domain.VoucherStore
	logger   *slog.Logger
}

// NewVoucherHandler creates a VoucherHandler.
func NewVoucherHandler(vouchers domain.VoucherStore, logger *slog.Logger) *VoucherHandler {
	return &VoucherHandler{
		vouchers: vouchers,
		logger:   logHandler(logger, "voucher"),
	}
}

// GetVoucher responds with the signed settlement voucher for an escrow.
// GET /api/vouchers/{escrowId}
func (h *VoucherHandler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	escrowID := pathParam(r, "escrowId")
	if escrowID == "" {
		writeError(w, http.StatusBadRequest, "escrow id required")
		return
	}

	voucher, err := h.vouchers.Get(r.Context(), escrowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "voucher not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "voucher query failed",
			slog.String("escrow_id", escrowID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load voucher")
		return
	}

	writeJSON(w, http.StatusOK, voucher)
}
