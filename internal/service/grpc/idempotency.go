package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// idempotent оборачивает вызов кэшем ответов по ключу из метаданных idempotency-key.
// Без ключа или без хранилища вызов выполняется как обычно.
type idempotent struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	now    func() time.Time
}

func withIdempotency[T any](
	ctx context.Context,
	idem idempotent,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if idem.repo == nil {
		return handler(ctx)
	}
	key := metadataValue(ctx, idempotencyKeyHeader)
	if key == "" {
		return handler(ctx)
	}

	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		idem.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := idem.repo.CreateProcessing(ctx, key, reqHash, idem.now().Add(domain.DefaultIdempotencyTTL))
	if err != nil {
		return replayIdempotency[T](idem.logger, err, record)
	}

	// Ответ кэшируется даже при отмене запроса клиентом.
	cacheCtx := context.WithoutCancel(ctx)
	resp, runErr := handler(ctx)
	if runErr != nil {
		idem.cacheFailure(cacheCtx, key, runErr)
		return nil, runErr
	}
	if cacheErr := idem.cacheSuccess(cacheCtx, key, resp); cacheErr != nil {
		idem.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func replayIdempotency[T any](logger *log.Entry, createErr error, record domain.IdempotencyRecord) (*T, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := new(T)
			if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
				logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (i idempotent) cacheSuccess(ctx context.Context, key string, resp any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.repo.MarkDone(ctx, key, data, int(codes.OK))
}

func (i idempotent) cacheFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := i.repo.MarkFailed(ctx, key, payload, int(code)); err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCode(int(payload.Code)); ok {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.Error(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCode(record.StatusCode); ok {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

// grpcCode принимает только коды ошибок: OK в записи о неудаче не имеет смысла.
func grpcCode(value int) (codes.Code, bool) {
	if value <= int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // bounds checked above.
}

func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	// encoding/json пишет поля структур в порядке объявления, поэтому тело детерминировано.
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
