package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	apphttp "github.com/openbridge/converter-core/pkg/app/http"
	"github.com/openbridge/converter-core/pkg/conversion"
	"github.com/openbridge/converter-core/pkg/conversion/service"
	"github.com/openbridge/converter-core/pkg/events"
)

const maxBodyBytes = 1 << 20

// QueueForwarder hands normalized events to the processing queue.
type QueueForwarder interface {
	Send(ctx context.Context, payload any) error
}

// Handler exposes the settlement core over HTTP.
type Handler struct {
	service  *service.Service
	queue    QueueForwarder
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(svc *service.Service, queue QueueForwarder, logger *zap.Logger) *Handler {
	return &Handler{
		service:  svc,
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the conversion routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/conversion", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.createConversion))
		r.Post("/claim", apphttp.HandleError(h.claimConversion))
		r.Get("/history", apphttp.HandleError(h.conversionHistory))
		r.Get("/count", apphttp.HandleError(h.conversionCount))
		r.Route("/{conversionID}", func(r chi.Router) {
			r.Get("/", apphttp.HandleError(h.getConversion))
			r.Post("/transaction", apphttp.HandleError(h.createTransaction))
			r.Put("/transaction", apphttp.HandleError(h.updateTransaction))
			r.Get("/transactions", apphttp.HandleError(h.listTransactions))
		})
	})
	r.Post("/v1/events", apphttp.HandleError(h.ingestEvents))
}

type createConversionRequest struct {
	TokenPairID string          `json:"token_pair_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	FromAddress string          `json:"from_address" validate:"required"`
	ToAddress   string          `json:"to_address" validate:"required"`
	BlockNumber uint64          `json:"block_number" validate:"required"`
	Signature   string          `json:"signature" validate:"required"`
	CreatedBy   string          `json:"created_by" validate:"omitempty,oneof=DAPP BACKEND_AGENT"`
}

type createConversionResponse struct {
	ConversionID   string          `json:"conversion_id"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	ClaimAmount    decimal.Decimal `json:"claim_amount"`
	DepositAddress *string         `json:"deposit_address,omitempty"`
	Signature      *string         `json:"signature,omitempty"`
}

func (h *Handler) createConversion(w http.ResponseWriter, r *http.Request) error {
	var req createConversionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	result, err := h.service.CreateConversionRequest(r.Context(), service.CreateRequest{
		TokenPairID: req.TokenPairID,
		Amount:      req.Amount,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		BlockNumber: req.BlockNumber,
		Signature:   req.Signature,
		CreatedBy:   createdByOrDefault(req.CreatedBy),
	})
	if err != nil {
		return err
	}

	return apphttp.WriteJSON(w, http.StatusCreated, createConversionResponse{
		ConversionID:   result.ConversionID,
		DepositAmount:  result.DepositAmount,
		FeeAmount:      result.FeeAmount,
		ClaimAmount:    result.ClaimAmount,
		DepositAddress: result.DepositAddress,
		Signature:      result.Signature,
	})
}

type createTransactionRequest struct {
	TransactionHash string `json:"transaction_hash" validate:"required"`
	CreatedBy       string `json:"created_by" validate:"omitempty,oneof=DAPP BACKEND_AGENT"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) error {
	var req createTransactionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	tx, err := h.service.CreateTransactionForConversion(
		r.Context(),
		chi.URLParam(r, "conversionID"),
		req.TransactionHash,
		createdByOrDefault(req.CreatedBy),
	)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, transactionResponse(tx))
}

type updateTransactionRequest struct {
	TransactionHash string `json:"transaction_hash" validate:"required"`
	Confirmation    int    `json:"confirmation" validate:"gte=0"`
	Status          string `json:"status" validate:"required,oneof=WAITING_FOR_CONFIRMATION SUCCESS FAILED"`
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) error {
	var req updateTransactionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	err := h.service.UpdateTransaction(
		r.Context(),
		chi.URLParam(r, "conversionID"),
		req.TransactionHash,
		req.Confirmation,
		conversion.TransactionStatus(req.Status),
	)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type claimConversionRequest struct {
	ConversionID string          `json:"conversion_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	FromAddress  string          `json:"from_address" validate:"required"`
	ToAddress    string          `json:"to_address" validate:"required"`
	Signature    string          `json:"signature" validate:"required"`
}

type claimConversionResponse struct {
	ConversionID string          `json:"conversion_id"`
	ClaimAmount  decimal.Decimal `json:"claim_amount"`
	Signature    string          `json:"signature"`
}

func (h *Handler) claimConversion(w http.ResponseWriter, r *http.Request) error {
	var req claimConversionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	result, err := h.service.ClaimConversion(r.Context(), service.ClaimRequest{
		ConversionID: req.ConversionID,
		Amount:       req.Amount,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		Signature:    req.Signature,
	})
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, claimConversionResponse{
		ConversionID: result.ConversionID,
		ClaimAmount:  result.ClaimAmount,
		Signature:    result.Signature,
	})
}

func (h *Handler) getConversion(w http.ResponseWriter, r *http.Request) error {
	detail, err := h.service.GetConversion(r.Context(), chi.URLParam(r, "conversionID"))
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, detailResponse(detail))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) error {
	transactions, err := h.service.GetTransactionsByConversionID(r.Context(), chi.URLParam(r, "conversionID"))
	if err != nil {
		return err
	}

	out := make([]map[string]any, len(transactions))
	for i := range transactions {
		out[i] = transactionResponse(&transactions[i])
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *Handler) conversionHistory(w http.ResponseWriter, r *http.Request) error {
	address := r.URL.Query().Get("address")
	if address == "" {
		return apperrors.BadRequestError(nil, apperrors.CodeValidation, "address query parameter is required")
	}

	page, err := h.service.GetConversionHistory(
		r.Context(),
		address,
		queryInt(r, "page_size", 20),
		queryInt(r, "page", 1),
	)
	if err != nil {
		return err
	}

	items := make([]map[string]any, len(page.Items))
	for i := range page.Items {
		items[i] = detailResponse(&page.Items[i])
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{
		"total": page.Total,
		"items": items,
	})
}

func (h *Handler) conversionCount(w http.ResponseWriter, r *http.Request) error {
	address := r.URL.Query().Get("address")
	if address == "" {
		return apperrors.BadRequestError(nil, apperrors.CodeValidation, "address query parameter is required")
	}

	counts, err := h.service.GetConversionCountByStatus(r.Context(), address)
	if err != nil {
		return err
	}

	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"counts": out})
}

type ingestEventsRequest struct {
	// Format selects the wire shape: "native", "queue" or "bridge".
	Format  string          `json:"format" validate:"required,oneof=native queue bridge"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ingestEvents normalizes an inbound event payload and forwards each
// canonical record to the processing queue. A parse failure aborts the whole
// batch; nothing is forwarded.
func (h *Handler) ingestEvents(w http.ResponseWriter, r *http.Request) error {
	var req ingestEventsRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	var (
		normalized []events.CanonicalEvent
		err        error
	)
	switch req.Format {
	case "native":
		normalized, err = events.NormalizeNativeEvent(req.Payload)
	case "queue":
		normalized, err = events.NormalizeQueueEvent(req.Payload)
	default:
		normalized, err = events.NormalizeBridgeEvent(req.Payload)
	}
	if err != nil {
		return err
	}

	for _, ev := range normalized {
		if err := h.queue.Send(r.Context(), ev); err != nil {
			return apperrors.DependencyError(fmt.Errorf("failed to forward event: %w", err))
		}
	}
	return apphttp.WriteJSON(w, http.StatusAccepted, map[string]int{"forwarded": len(normalized)})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, apperrors.CodeValidation, "failed to read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, apperrors.CodeValidation, "request body is not valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, apperrors.CodeValidation, "request failed validation")
	}
	return nil
}

func createdByOrDefault(raw string) conversion.CreatedBy {
	if raw == "" {
		return conversion.CreatedByDApp
	}
	return conversion.CreatedBy(raw)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil || value <= 0 {
		return fallback
	}
	return value
}

func transactionResponse(tx *conversion.Transaction) map[string]any {
	return map[string]any{
		"transaction_hash": tx.Hash,
		"operation":        tx.Operation,
		"amount":           tx.Amount,
		"confirmation":     tx.Confirmation,
		"status":           tx.Status,
		"created_at":       tx.CreatedAt.Format(time.RFC3339),
	}
}

func detailResponse(detail *conversion.Detail) map[string]any {
	transactions := make([]map[string]any, len(detail.Transactions))
	for i := range detail.Transactions {
		transactions[i] = transactionResponse(&detail.Transactions[i])
	}
	return map[string]any{
		"conversion_id":   detail.Conversion.ID,
		"token_pair_id":   detail.TokenPair.ID,
		"from_address":    detail.WalletPair.FromAddress,
		"to_address":      detail.WalletPair.ToAddress,
		"deposit_address": detail.WalletPair.DepositAddress,
		"deposit_amount":  detail.Conversion.DepositAmount,
		"fee_amount":      detail.Conversion.FeeAmount,
		"claim_amount":    detail.Conversion.ClaimAmount,
		"status":          detail.Conversion.Status,
		"claim_signature": detail.Conversion.ClaimSignature,
		"created_at":      detail.Conversion.CreatedAt.Format(time.RFC3339),
		"transactions":    transactions,
	}
}
