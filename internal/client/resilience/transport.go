package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// TransportError классифицирует сетевую ошибку удалённого вызова.
// Истёкший таймаут означает неизвестный исход (domain.ErrOutcomeUnknown),
// остальные сетевые ошибки оборачиваются в temporary.
func TransportError(op string, err, temporary error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrOutcomeUnknown, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, temporary, err)
}

// IsTimeout сообщает, что вызов прерван по таймауту.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
