package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
)

var _ checkoutv1.PaymentServiceServer = (*PaymentService)(nil)

// PaymentProcessor: операции координатора платежей, нужные gRPC-слою.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req payment.ProcessRequest) (domain.Payment, error)
	Refund(ctx context.Context, paymentID, reason string) (domain.Payment, error)
	Get(ctx context.Context, paymentID, userID string) (domain.Payment, error)
	GetByOrder(ctx context.Context, orderID, userID string) (domain.Payment, error)
	ListUser(ctx context.Context, userID string, limit int) ([]domain.Payment, error)
	ListTransactions(ctx context.Context, paymentID, userID string) ([]domain.Transaction, error)
}

// PaymentService реализует gRPC API платежей.
type PaymentService struct {
	payments PaymentProcessor
	logger   *log.Entry
}

func NewPaymentService(payments PaymentProcessor, logger *log.Entry) *PaymentService {
	if logger == nil {
		logger = log.New().WithField("component", "payment-service")
	}
	return &PaymentService{payments: payments, logger: logger}
}

// ProcessPayment оплачивает заказ. Отказ провайдера возвращается платежом в статусе FAILED,
// а не ошибкой; неизвестный исход даёт DeadlineExceeded, и запрос можно повторить.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *checkoutv1.ProcessPaymentRequest) (*checkoutv1.ProcessPaymentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	const method = checkoutv1.PaymentService_ProcessPayment_FullMethodName

	p, err := s.payments.ProcessPayment(ctx, payment.ProcessRequest{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Method:      req.Method,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentIndeterminate) {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":   req.OrderID,
				"payment_id": p.ID,
			}).Warn("payment outcome unknown")
		}
		return nil, toStatus(s.logger, method, err)
	}
	return &checkoutv1.ProcessPaymentResponse{Payment: toAPIPayment(p)}, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, req *checkoutv1.GetPaymentRequest) (*checkoutv1.GetPaymentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	p, err := s.payments.Get(ctx, req.PaymentID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.PaymentService_GetPayment_FullMethodName, err)
	}
	return &checkoutv1.GetPaymentResponse{Payment: toAPIPayment(p)}, nil
}

func (s *PaymentService) GetPaymentByOrder(ctx context.Context, req *checkoutv1.GetPaymentByOrderRequest) (*checkoutv1.GetPaymentByOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	p, err := s.payments.GetByOrder(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.PaymentService_GetPaymentByOrder_FullMethodName, err)
	}
	return &checkoutv1.GetPaymentByOrderResponse{Payment: toAPIPayment(p)}, nil
}

func (s *PaymentService) ListUserPayments(ctx context.Context, req *checkoutv1.ListUserPaymentsRequest) (*checkoutv1.ListUserPaymentsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	payments, err := s.payments.ListUser(ctx, req.UserID, int(req.Limit))
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.PaymentService_ListUserPayments_FullMethodName, err)
	}

	resp := &checkoutv1.ListUserPaymentsResponse{Payments: make([]*checkoutv1.Payment, 0, len(payments))}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, toAPIPayment(p))
	}
	return resp, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, req *checkoutv1.ListTransactionsRequest) (*checkoutv1.ListTransactionsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	txs, err := s.payments.ListTransactions(ctx, req.PaymentID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.PaymentService_ListTransactions_FullMethodName, err)
	}

	resp := &checkoutv1.ListTransactionsResponse{Transactions: make([]*checkoutv1.Transaction, 0, len(txs))}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, &checkoutv1.Transaction{
			ID:          tx.ID,
			PaymentID:   tx.PaymentID,
			Type:        string(tx.Type),
			AmountMinor: tx.AmountMinor,
			Status:      string(tx.Status),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		})
	}
	return resp, nil
}

// RefundPayment возвращает деньги по успешному платежу. Доступно только администратору.
func (s *PaymentService) RefundPayment(ctx context.Context, req *checkoutv1.RefundPaymentRequest) (*checkoutv1.RefundPaymentResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req == nil || req.PaymentID == "" {
		return nil, status.Error(codes.InvalidArgument, "payment_id is required")
	}
	p, err := s.payments.Refund(ctx, req.PaymentID, req.Reason)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.PaymentService_RefundPayment_FullMethodName, err)
	}
	return &checkoutv1.RefundPaymentResponse{Payment: toAPIPayment(p)}, nil
}

func toAPIPayment(p domain.Payment) *checkoutv1.Payment {
	return &checkoutv1.Payment{
		ID:            p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		AmountMinor:   p.AmountMinor,
		Currency:      p.Currency,
		Status:        string(p.Status),
		Method:        p.Method,
		TransactionID: p.TransactionID,
		ExternalRef:   p.ExternalRef,
		FailureReason: p.FailureReason,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
