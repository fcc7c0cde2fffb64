package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mpesa-checkout-service/calc"
	"mpesa-checkout-service/config"
	"mpesa-checkout-service/logging"
	"mpesa-checkout-service/models"
	"mpesa-checkout-service/mpesa"
	"mpesa-checkout-service/service"
	"mpesa-checkout-service/store"
)

// PaymentHandler handles HTTP requests for the checkout flow.
type PaymentHandler struct {
	paymentService *service.PaymentService
	callbackSecret string
	allowedIPs     map[string]struct{}
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(paymentService *service.PaymentService, cfg *config.Config) *PaymentHandler {
	allowed := make(map[string]struct{}, len(cfg.CallbackAllowedIPs))
	for _, ip := range cfg.CallbackAllowedIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}
	return &PaymentHandler{
		paymentService: paymentService,
		callbackSecret: cfg.CallbackSecret,
		allowedIPs:     allowed,
	}
}

// Index renders the payment form. An optional `data` query parameter
// carries a base64/URI-encoded prefill payload; malformed payloads degrade
// to an empty form.
func (h *PaymentHandler) Index(c *gin.Context) {
	page := gin.H{}
	if raw := c.Query("data"); raw != "" {
		prefill, err := models.DecodePrefill(raw)
		if err != nil {
			logging.Warn("Ignoring malformed prefill payload", zap.Error(err))
		} else {
			page["TransactionType"] = prefill.TransactionType
			if prefill.Amount > 0 {
				page["Amount"] = prefill.Amount
			}
		}
	}
	c.HTML(http.StatusOK, "index.html", page)
}

// InitiatePayment handles the form submission and returns the correlation
// id the browser polls with.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	checkoutRequestID, err := h.paymentService.InitiatePayment(ctx, &req)
	if err != nil {
		h.renderInitiateError(c, span, &req, err)
		return
	}

	span.AddEvent("stk_push_initiated")
	c.JSON(http.StatusOK, gin.H{"checkout_request_id": checkoutRequestID})
}

// renderInitiateError maps component errors onto user-facing responses.
// User-correctable validation problems are surfaced inline; gateway
// rejections verbatim when structured; auth failures as a generic message
// with the detail kept in the server log.
func (h *PaymentHandler) renderInitiateError(c *gin.Context, span trace.Span, req *models.PaymentRequest, err error) {
	logger := logging.WithTraceContext(span)

	var authErr *mpesa.AuthError
	var gwErr *mpesa.GatewayError
	switch {
	case errors.Is(err, mpesa.ErrInvalidPhone), errors.Is(err, mpesa.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &authErr):
		logger.Error("Gateway authentication failed",
			zap.Error(err),
			zap.String("phone", req.PhoneNumber),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be initiated, please try again later"})
	case errors.As(err, &gwErr):
		logger.Error("Gateway rejected STK push",
			zap.String("error_code", gwErr.Code),
			zap.String("error_message", gwErr.Message),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": gwErr.Message})
	default:
		logger.Error("Payment initiation failed",
			zap.Error(err),
			zap.String("phone", req.PhoneNumber),
			zap.Int64("amount", req.Amount),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment could not be initiated"})
	}
}

// Status serves the store-backed payment status the browser polls.
func (h *PaymentHandler) Status(c *gin.Context) {
	resp, err := h.paymentService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown payment"})
			return
		}
		logging.Error("Status lookup failed", zap.Error(err), zap.String("checkout_request_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Callback receives the gateway's out-of-band result. Two gates run before
// the body is parsed: the source IP allow-list (403 on failure, body never
// read) and the path-embedded shared secret. A wrong secret gets the same
// generic acknowledgement as a valid call so probing reveals nothing.
// ClientIP honors forwarding headers only from proxies registered via
// SetTrustedProxies, so a direct caller cannot forge its way past the gate.
func (h *PaymentHandler) Callback(c *gin.Context) {
	if _, ok := h.allowedIPs[c.ClientIP()]; !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "IP not whitelisted"})
		return
	}

	secret := c.Param("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.callbackSecret)) != 1 {
		logging.Warn("Callback with wrong secret", zap.String("source_ip", c.ClientIP()))
		c.JSON(http.StatusOK, "ok")
		return
	}

	var envelope models.CallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		// Acknowledge anyway; a non-2xx would make the gateway retry.
		logging.Error("Callback body could not be parsed", zap.Error(err))
		c.JSON(http.StatusOK, "ok")
		return
	}

	if err := h.paymentService.RecordCallback(c.Request.Context(), &envelope.Body.STKCallback); err != nil {
		logging.Error("Failed to record callback outcome",
			zap.Error(err),
			zap.String("checkout_request_id", envelope.Body.STKCallback.CheckoutRequestID),
		)
	}
	c.JSON(http.StatusOK, "ok")
}

// Calculate evaluates a constrained arithmetic expression for the form's
// calculator widget.
func (h *PaymentHandler) Calculate(c *gin.Context) {
	var req struct {
		Expression string `json:"expression" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := calc.Evaluate(req.Expression)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// HealthCheck handles health check requests
func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
