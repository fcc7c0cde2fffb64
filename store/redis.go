package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mpesa-checkout-service/models"
)

const (
	fieldReferenceID = "reference_id"
	fieldPhone       = "phone_number"
	fieldAmount      = "amount"
	fieldStatus      = "status"
	fieldResultDesc  = "result_desc"
	fieldReceipt     = "receipt"
	fieldUpdatedAt   = "updated_at"
)

// Redis implements Store on a redis hash per payment record.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a redis-backed store with the given record TTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func paymentKey(checkoutRequestID string) string {
	return "payment:" + checkoutRequestID
}

func (r *Redis) Put(ctx context.Context, rec models.PaymentRecord) error {
	key := paymentKey(rec.CheckoutRequestID)
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key,
		fieldReferenceID, rec.ReferenceID,
		fieldPhone, rec.PhoneNumber,
		fieldAmount, strconv.FormatInt(rec.Amount, 10),
		fieldStatus, string(rec.Status),
		fieldResultDesc, rec.ResultDesc,
		fieldReceipt, rec.Receipt,
		fieldUpdatedAt, now,
	)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to write payment record",
			zap.Error(err),
			zap.String("checkout_request_id", rec.CheckoutRequestID),
		)
		return fmt.Errorf("failed to write payment record: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, checkoutRequestID string) (models.PaymentRecord, error) {
	fields, err := r.client.HGetAll(ctx, paymentKey(checkoutRequestID)).Result()
	if err != nil {
		r.logger.Error("failed to read payment record",
			zap.Error(err),
			zap.String("checkout_request_id", checkoutRequestID),
		)
		return models.PaymentRecord{}, fmt.Errorf("failed to read payment record: %w", err)
	}
	if len(fields) == 0 {
		return models.PaymentRecord{}, ErrNotFound
	}

	rec := models.PaymentRecord{
		CheckoutRequestID: checkoutRequestID,
		ReferenceID:       fields[fieldReferenceID],
		PhoneNumber:       fields[fieldPhone],
		Status:            models.PaymentStatus(fields[fieldStatus]),
		ResultDesc:        fields[fieldResultDesc],
		Receipt:           fields[fieldReceipt],
	}
	if amount, err := strconv.ParseInt(fields[fieldAmount], 10, 64); err == nil {
		rec.Amount = amount
	}
	if ts, err := time.Parse(time.RFC3339, fields[fieldUpdatedAt]); err == nil {
		rec.UpdatedAt = ts
	}
	return rec, nil
}

// setOutcomeScript applies the stickiness rule and the write in one atomic
// step on the server, so a concurrent poll-side timeout can never race past
// the check and downgrade a recorded success. Mirrors allowTransition.
var setOutcomeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'success' then
	return 0
end
if (status == 'failed' or status == 'timeout') and ARGV[1] ~= 'success' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'result_desc', ARGV[2], 'updated_at', ARGV[3])
if ARGV[4] ~= '' then
	redis.call('HSET', KEYS[1], 'receipt', ARGV[4])
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func (r *Redis) SetOutcome(ctx context.Context, checkoutRequestID string, status models.PaymentStatus, desc, receipt string) error {
	key := paymentKey(checkoutRequestID)
	now := time.Now().UTC().Format(time.RFC3339)

	err := setOutcomeScript.Run(ctx, r.client, []string{key},
		string(status), desc, now, receipt, r.ttl.Milliseconds(),
	).Err()
	if err != nil {
		r.logger.Error("failed to record payment outcome",
			zap.Error(err),
			zap.String("checkout_request_id", checkoutRequestID),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("failed to record payment outcome: %w", err)
	}
	return nil
}
