package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	userRoleHeader       = "x-user-role"
	adminRole            = "admin"
	// serviceRole выставляют внутренние клиенты сервисов checkout, например сервис платежей.
	serviceRole = "service"
)

// codeFor сопоставляет доменную ошибку с gRPC-кодом.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrOrderPersist):
		return codes.Internal
	case errors.Is(err, domain.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInsufficientLotQuantity),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPaymentNotRefundable):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrLotNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrPaymentAlreadyExists),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrPaymentVersionConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrPaymentIndeterminate),
		errors.Is(err, domain.ErrOutcomeUnknown),
		errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrInventoryTemporary),
		errors.Is(err, domain.ErrCartTemporary),
		errors.Is(err, domain.ErrPaymentTemporary),
		errors.Is(err, domain.ErrOrderServiceTemporary):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrAddressRequired),
		errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrItemRequired),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrPaymentAmountInvalid),
		errors.Is(err, domain.ErrPaymentAmountMismatch),
		errors.Is(err, domain.ErrPaymentMethodRequired):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// toStatus превращает ошибку сервиса в gRPC status. Внутренние ошибки не раскрываются клиенту.
func toStatus(logger *log.Entry, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeFor(err)
	if code == codes.Internal {
		logger.WithError(err).WithField("method", method).Error("request failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// metadataValue читает первое непустое значение заголовка из входящих, затем из исходящих метаданных.
func metadataValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := firstNonEmpty(md.Get(key)); v != "" {
			return v
		}
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		return firstNonEmpty(md.Get(key))
	}
	return ""
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// requireService пропускает только внутренние вызовы с x-user-role: service.
func requireService(ctx context.Context) error {
	if !strings.EqualFold(metadataValue(ctx, userRoleHeader), serviceRole) {
		return status.Error(codes.PermissionDenied, "service role is required")
	}
	return nil
}

// requireAdmin пропускает только вызовы с x-user-role: admin.
func requireAdmin(ctx context.Context) error {
	if !strings.EqualFold(metadataValue(ctx, userRoleHeader), adminRole) {
		return status.Error(codes.PermissionDenied, "admin role is required")
	}
	return nil
}
