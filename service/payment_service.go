package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mpesa-checkout-service/config"
	"mpesa-checkout-service/logging"
	"mpesa-checkout-service/models"
	"mpesa-checkout-service/monitoring"
	"mpesa-checkout-service/mpesa"
	"mpesa-checkout-service/store"
)

// Gateway is the slice of the M-Pesa client the service depends on.
type Gateway interface {
	STKPush(ctx context.Context, phone string, amount int64, reference string) (*models.STKPushResponse, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (*models.STKQueryResponse, error)
}

// PaymentService orchestrates push initiation, the server-side status poll
// and callback recording. The browser only ever talks to this service; all
// gateway traffic (including token acquisition) happens here.
type PaymentService struct {
	tracer          trace.Tracer
	gateway         Gateway
	records         store.Store
	processingCodes map[string]struct{}
	pollInterval    time.Duration
	pollMaxAttempts int
	queryTimeout    time.Duration
}

// NewPaymentService creates a new payment service.
func NewPaymentService(tracer trace.Tracer, gateway Gateway, records store.Store, cfg *config.Config) *PaymentService {
	codes := make(map[string]struct{}, len(cfg.ProcessingCodes))
	for _, c := range cfg.ProcessingCodes {
		codes[c] = struct{}{}
	}
	return &PaymentService{
		tracer:          tracer,
		gateway:         gateway,
		records:         records,
		processingCodes: codes,
		pollInterval:    cfg.PollInterval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		queryTimeout:    cfg.GatewayTimeout,
	}
}

// InitiatePayment validates the request, submits the push prompt and starts
// the background status poll. It returns the gateway's correlation id.
func (s *PaymentService) InitiatePayment(ctx context.Context, req *models.PaymentRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "initiate_payment")
	defer span.End()

	if req.Amount <= 0 {
		return "", mpesa.ErrInvalidAmount
	}
	phone, err := mpesa.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return "", err
	}

	span.SetAttributes(
		attribute.String("payment.phone", phone),
		attribute.Int64("payment.amount", req.Amount),
	)
	logger := logging.WithTraceContext(span)

	start := time.Now()
	resp, err := s.gateway.STKPush(ctx, phone, req.Amount, req.PhoneNumber)
	monitoring.GatewayCallDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", "stk_push")),
	)
	if err != nil {
		logger.Error("STK push failed",
			zap.Error(err),
			zap.String("phone", phone),
			zap.Int64("amount", req.Amount),
		)
		monitoring.PushCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "failed")),
		)
		span.SetAttributes(attribute.String("payment.status", "failed"))
		return "", err
	}

	rec := models.PaymentRecord{
		CheckoutRequestID: resp.CheckoutRequestID,
		ReferenceID:       uuid.NewString(),
		PhoneNumber:       phone,
		Amount:            req.Amount,
		Status:            models.StatusPending,
	}
	if err := s.records.Put(ctx, rec); err != nil {
		logger.Error("Failed to store pending payment",
			zap.Error(err),
			zap.String("checkout_request_id", resp.CheckoutRequestID),
		)
		return "", err
	}

	monitoring.PushCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", "initiated")),
	)
	span.SetAttributes(attribute.String("payment.checkout_request_id", resp.CheckoutRequestID))
	logger.Info("STK push initiated",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("reference_id", rec.ReferenceID),
		zap.Int64("amount", req.Amount),
	)

	// The poll outlives the initiating request.
	go s.pollStatus(resp.CheckoutRequestID)

	return resp.CheckoutRequestID, nil
}

// pollStatus queries the gateway on a fixed interval until a terminal
// outcome or the attempt ceiling, then writes the outcome to the store
// exactly once. Gateway errors whose code is in the processing allow-list
// keep the loop alive; everything else terminates it.
func (s *PaymentService) pollStatus(checkoutRequestID string) {
	ctx, span := s.tracer.Start(context.Background(), "poll_status")
	defer span.End()
	span.SetAttributes(attribute.String("payment.checkout_request_id", checkoutRequestID))
	logger := logging.WithTraceContext(span)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	outcome := "timeout"
	attempts := 0
	for attempt := 1; attempt <= s.pollMaxAttempts; attempt++ {
		<-ticker.C
		attempts = attempt

		queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		start := time.Now()
		resp, err := s.gateway.STKQuery(queryCtx, checkoutRequestID)
		monitoring.GatewayCallDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("operation", "stk_query")),
		)
		cancel()

		done, status, desc := s.classify(resp, err)
		if !done {
			continue
		}

		outcome = string(status)
		if err := s.records.SetOutcome(ctx, checkoutRequestID, status, desc, ""); err != nil {
			logger.Error("Failed to record poll outcome",
				zap.Error(err),
				zap.String("checkout_request_id", checkoutRequestID),
			)
		}
		logger.Info("Status poll finished",
			zap.String("checkout_request_id", checkoutRequestID),
			zap.String("status", string(status)),
			zap.String("result_desc", desc),
			zap.Int("attempts", attempt),
		)
		monitoring.PollAttempts.Record(ctx, int64(attempt),
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
		return
	}

	// Ceiling reached with no terminal result.
	if err := s.records.SetOutcome(ctx, checkoutRequestID, models.StatusTimeout, "Payment timed out", ""); err != nil {
		logger.Error("Failed to record poll timeout",
			zap.Error(err),
			zap.String("checkout_request_id", checkoutRequestID),
		)
	}
	logger.Warn("Status poll timed out",
		zap.String("checkout_request_id", checkoutRequestID),
		zap.Int("attempts", attempts),
	)
	monitoring.PollAttempts.Record(ctx, int64(attempts),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// classify maps one query round to (terminal?, status, description).
func (s *PaymentService) classify(resp *models.STKQueryResponse, err error) (bool, models.PaymentStatus, string) {
	if err != nil {
		var gwErr *mpesa.GatewayError
		if errors.As(err, &gwErr) {
			if _, processing := s.processingCodes[gwErr.Code]; processing {
				return false, "", ""
			}
			return true, models.StatusFailed, gwErr.Message
		}
		return true, models.StatusFailed, err.Error()
	}

	switch resp.ResultCode {
	case "":
		// No result yet; keep polling.
		return false, "", ""
	case "0":
		return true, models.StatusSuccess, resp.ResultDesc
	default:
		return true, models.StatusFailed, resp.ResultDesc
	}
}

// Status serves the browser-facing status endpoint from the shared store.
func (s *PaymentService) Status(ctx context.Context, checkoutRequestID string) (models.StatusResponse, error) {
	rec, err := s.records.Get(ctx, checkoutRequestID)
	if err != nil {
		return models.StatusResponse{}, err
	}
	return models.StatusResponse{
		CheckoutRequestID: rec.CheckoutRequestID,
		Status:            rec.Status,
		Description:       rec.ResultDesc,
		Receipt:           rec.Receipt,
	}, nil
}

// RecordCallback applies the gateway's out-of-band result to the store.
// The callback is authoritative: it may overwrite a poll-side timeout.
func (s *PaymentService) RecordCallback(ctx context.Context, cb *models.STKCallback) error {
	ctx, span := s.tracer.Start(ctx, "record_callback")
	defer span.End()
	span.SetAttributes(attribute.String("payment.checkout_request_id", cb.CheckoutRequestID))
	logger := logging.WithTraceContext(span)

	if cb.ResultCode != 0 || cb.CallbackMetadata == nil {
		// The prompt was cancelled, rejected or expired.
		logger.Info("Callback reported unsuccessful payment",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int("result_code", cb.ResultCode),
			zap.String("result_desc", cb.ResultDesc),
		)
		monitoring.CallbackCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", "failed")),
		)
		return s.records.SetOutcome(ctx, cb.CheckoutRequestID, models.StatusFailed, cb.ResultDesc, "")
	}

	amount, _ := cb.CallbackMetadata.Get("Amount")
	receipt, _ := cb.CallbackMetadata.Get("MpesaReceiptNumber")
	phone, _ := cb.CallbackMetadata.Get("PhoneNumber")

	logger.Info("Callback reported successful payment",
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.String("amount", amount),
		zap.String("receipt", receipt),
		zap.String("phone", phone),
	)
	monitoring.CallbackCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", "success")),
	)
	return s.records.SetOutcome(ctx, cb.CheckoutRequestID, models.StatusSuccess, cb.ResultDesc, receipt)
}
