package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stealthpay/internal/settlement"
)

// SettlementRequest is the intake payload for one bridged transfer.
type SettlementRequest struct {
	SrcDomain          uint32                 `json:"srcDomain"`
	SrcTxHash          string                 `json:"srcTxHash"`
	Amount             string                 `json:"amount"`
	StealthOwner       string                 `json:"stealthOwner"`
	StealthATA         string                 `json:"stealthAta"`
	EphPub             string                 `json:"ephPub"`
	TransportMemo      string                 `json:"encryptedPayload"`
	Label              string                 `json:"label"`
	LinkID             string                 `json:"linkId"`
	USDCAddress        string                 `json:"usdcAddress"`
	TransmitterProgram string                 `json:"messageTransmitterProgram"`
	MessengerProgram   string                 `json:"tokenMessengerMinterProgram"`
	Attestation        settlement.Attestation `json:"attestation"`
}

// SettlementResponse acknowledges an accepted transfer.
type SettlementResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transferId"`
	Message    string `json:"message"`
}

// SettlementHandler accepts bridged transfers and queues them for
// settlement.
type SettlementHandler struct {
	queue *settlement.Queue
	log   *zap.Logger
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(queue *settlement.Queue, log *zap.Logger) *SettlementHandler {
	return &SettlementHandler{queue: queue, log: log}
}

// Submit handles POST /settlements
// @Summary      Queue a bridged transfer for settlement
// @Description  Validates the request shape and queues the transfer; the receive and announce legs run in the background
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Param        request  body      SettlementRequest  true  "Bridged transfer"
// @Success      202      {object}  SettlementResponse
// @Router       /settlements [post]
func (h *SettlementHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	transfer, err := req.transfer()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.Submit(r.Context(), *transfer); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.log.Info("queued settlement",
		zap.String("transfer_id", transfer.ID),
		zap.String("src_tx", transfer.SrcTxHash))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SettlementResponse{
		Success:    true,
		TransferID: transfer.ID,
		Message:    "transfer queued for settlement",
	})
}

// Healthz handles GET /healthz
// @Summary      Liveness probe
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (h *SettlementHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// transfer maps the request onto a settlement task, rejecting malformed
// identifiers before anything reaches the queue.
func (req *SettlementRequest) transfer() (*settlement.Transfer, error) {
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		return nil, errBadField("amount", err)
	}
	owner, err := solana.PublicKeyFromBase58(req.StealthOwner)
	if err != nil {
		return nil, errBadField("stealthOwner", err)
	}
	ata, err := solana.PublicKeyFromBase58(req.StealthATA)
	if err != nil {
		return nil, errBadField("stealthAta", err)
	}
	ephPub, err := solana.PublicKeyFromBase58(req.EphPub)
	if err != nil {
		return nil, errBadField("ephPub", err)
	}
	transmitter, err := solana.PublicKeyFromBase58(req.TransmitterProgram)
	if err != nil {
		return nil, errBadField("messageTransmitterProgram", err)
	}
	messenger, err := solana.PublicKeyFromBase58(req.MessengerProgram)
	if err != nil {
		return nil, errBadField("tokenMessengerMinterProgram", err)
	}

	return &settlement.Transfer{
		ID:                 uuid.NewString(),
		SrcDomain:          req.SrcDomain,
		SrcTxHash:          req.SrcTxHash,
		Amount:             amount,
		StealthOwner:       owner,
		StealthATA:         ata,
		EphPub:             ephPub,
		TransportMemo:      req.TransportMemo,
		Label:              req.Label,
		LinkID:             req.LinkID,
		RemoteUSDCHex:      req.USDCAddress,
		TransmitterProgram: transmitter,
		MessengerProgram:   messenger,
		Attestation:        req.Attestation,
	}, nil
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return "invalid " + e.field + ": " + e.err.Error() }

func errBadField(field string, err error) error {
	return &fieldError{field: field, err: err}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
