package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/saga"
)

var _ checkoutv1.OrderServiceServer = (*OrderService)(nil)

// OrderService реализует gRPC API заказов поверх оркестратора саги.
type OrderService struct {
	saga   saga.Orchestrator
	idem   idempotent
	logger *log.Entry
}

// NewOrderService конструирует сервис с зависимостями. idemRepo может быть nil:
// тогда заголовок idempotency-key игнорируется.
func NewOrderService(orchestrator saga.Orchestrator, idemRepo domain.IdempotencyRepository, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &OrderService{
		saga: orchestrator,
		idem: idempotent{
			repo:   idemRepo,
			logger: logger,
			now:    func() time.Time { return time.Now().UTC() },
		},
		logger: logger,
	}
}

// PlaceOrder оформляет заказ из корзины пользователя.
func (s *OrderService) PlaceOrder(ctx context.Context, req *checkoutv1.PlaceOrderRequest) (*checkoutv1.PlaceOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	const method = checkoutv1.OrderService_PlaceOrder_FullMethodName

	return withIdempotency(ctx, s.idem, method, req, func(ctx context.Context) (*checkoutv1.PlaceOrderResponse, error) {
		order, err := s.saga.PlaceOrder(ctx, saga.PlaceOrderRequest{
			UserID:    req.UserID,
			AddressID: req.AddressID,
		})
		if err != nil {
			return nil, toStatus(s.logger, method, err)
		}
		return &checkoutv1.PlaceOrderResponse{Order: toAPIOrder(order)}, nil
	})
}

// FinalizePayment подтверждает оплаченный заказ. Повторный вызов возвращает текущий заказ.
// Вызывать его может только сервис платежей после успешного списания (x-user-role: service):
// владелец заказа сам подтвердить неоплаченный заказ не может.
func (s *OrderService) FinalizePayment(ctx context.Context, req *checkoutv1.FinalizePaymentRequest) (*checkoutv1.FinalizePaymentResponse, error) {
	if err := requireService(ctx); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	const method = checkoutv1.OrderService_FinalizePayment_FullMethodName

	if err := s.saga.FinalizePayment(ctx, req.OrderID, req.UserID); err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	order, err := s.saga.GetOrder(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	return &checkoutv1.FinalizePaymentResponse{Order: toAPIOrder(order)}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, req *checkoutv1.GetOrderRequest) (*checkoutv1.GetOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.saga.GetOrder(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.OrderService_GetOrder_FullMethodName, err)
	}
	return &checkoutv1.GetOrderResponse{Order: toAPIOrder(order)}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, req *checkoutv1.ListOrdersRequest) (*checkoutv1.ListOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	orders, err := s.saga.ListOrders(ctx, req.UserID, int(req.Limit))
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.OrderService_ListOrders_FullMethodName, err)
	}

	resp := &checkoutv1.ListOrdersResponse{Orders: make([]*checkoutv1.Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toAPIOrder(order))
	}
	return resp, nil
}

// CancelOrder отменяет неоплаченный заказ владельца.
func (s *OrderService) CancelOrder(ctx context.Context, req *checkoutv1.CancelOrderRequest) (*checkoutv1.CancelOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.saga.CancelOrder(ctx, req.OrderID, req.UserID, req.Reason)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.OrderService_CancelOrder_FullMethodName, err)
	}
	return &checkoutv1.CancelOrderResponse{Order: toAPIOrder(order)}, nil
}

// UpdateOrderStatus меняет статус заказа. Доступно только администратору.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *checkoutv1.UpdateOrderStatusRequest) (*checkoutv1.UpdateOrderStatusResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	const method = checkoutv1.OrderService_UpdateOrderStatus_FullMethodName

	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	order, err := s.saga.UpdateOrderStatus(ctx, req.OrderID, next)
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	return &checkoutv1.UpdateOrderStatusResponse{Order: toAPIOrder(order)}, nil
}

// UpdateOrder правит статус и дату доставки. Доступно только администратору.
func (s *OrderService) UpdateOrder(ctx context.Context, req *checkoutv1.UpdateOrderRequest) (*checkoutv1.UpdateOrderResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	const method = checkoutv1.OrderService_UpdateOrder_FullMethodName

	update := saga.UpdateOrderRequest{OrderID: req.OrderID, DeliveryDate: req.DeliveryDate}
	if req.Status != "" {
		next, err := domain.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, toStatus(s.logger, method, err)
		}
		update.Status = &next
	}

	order, err := s.saga.UpdateOrder(ctx, update)
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	return &checkoutv1.UpdateOrderResponse{Order: toAPIOrder(order)}, nil
}

func (s *OrderService) GetOrderTimeline(ctx context.Context, req *checkoutv1.GetOrderTimelineRequest) (*checkoutv1.GetOrderTimelineResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	events, err := s.saga.Timeline(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, toStatus(s.logger, checkoutv1.OrderService_GetOrderTimeline_FullMethodName, err)
	}

	resp := &checkoutv1.GetOrderTimelineResponse{Events: make([]*checkoutv1.TimelineEvent, 0, len(events))}
	for _, event := range events {
		resp.Events = append(resp.Events, &checkoutv1.TimelineEvent{
			Type:     event.Type,
			Status:   string(event.Status),
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return resp, nil
}

func toAPIOrder(order domain.Order) *checkoutv1.Order {
	lines := make([]checkoutv1.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, checkoutv1.OrderLine{
			ID:             line.ID,
			ItemID:         line.ItemID,
			LotID:          line.LotID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  line.SubtotalMinor,
		})
	}

	return &checkoutv1.Order{
		ID:           order.ID,
		UserID:       order.UserID,
		AddressID:    order.AddressID,
		Status:       string(order.Status),
		TotalMinor:   order.TotalMinor,
		Lines:        lines,
		DeliveryDate: order.DeliveryDate,
		FinalizedAt:  order.FinalizedAt,
		Version:      order.Version,
		OrderedAt:    order.OrderedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}
