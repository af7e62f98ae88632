package checkoutv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// OrderServiceName: полное имя gRPC-сервиса заказов.
const OrderServiceName = "checkout.v1.OrderService"

// Полные имена методов OrderService.
const (
	OrderService_PlaceOrder_FullMethodName        = "/checkout.v1.OrderService/PlaceOrder"
	OrderService_FinalizePayment_FullMethodName   = "/checkout.v1.OrderService/FinalizePayment"
	OrderService_GetOrder_FullMethodName          = "/checkout.v1.OrderService/GetOrder"
	OrderService_ListOrders_FullMethodName        = "/checkout.v1.OrderService/ListOrders"
	OrderService_CancelOrder_FullMethodName       = "/checkout.v1.OrderService/CancelOrder"
	OrderService_UpdateOrderStatus_FullMethodName = "/checkout.v1.OrderService/UpdateOrderStatus"
	OrderService_UpdateOrder_FullMethodName       = "/checkout.v1.OrderService/UpdateOrder"
	OrderService_GetOrderTimeline_FullMethodName  = "/checkout.v1.OrderService/GetOrderTimeline"
)

// OrderLine: строка заказа, закрытая одной партией.
type OrderLine struct {
	ID             string `json:"id"`
	ItemID         string `json:"item_id"`
	LotID          string `json:"lot_id"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

// Order: снимок заказа.
type Order struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	AddressID    string      `json:"address_id"`
	Status       string      `json:"status"`
	TotalMinor   int64       `json:"total_minor"`
	Lines        []OrderLine `json:"lines"`
	DeliveryDate *time.Time  `json:"delivery_date,omitempty"`
	FinalizedAt  *time.Time  `json:"finalized_at,omitempty"`
	Version      int64       `json:"version"`
	OrderedAt    time.Time   `json:"ordered_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type PlaceOrderRequest struct {
	UserID    string `json:"user_id"`
	AddressID string `json:"address_id"`
}

type PlaceOrderResponse struct {
	Order *Order `json:"order"`
}

type FinalizePaymentRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type FinalizePaymentResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type ListOrdersRequest struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
}

type CancelOrderResponse struct {
	Order *Order `json:"order"`
}

// UpdateOrderStatusRequest: правка статуса администратором.
type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Order *Order `json:"order"`
}

// UpdateOrderRequest: правка администратора (статус и/или дата доставки).
// Пустой Status оставляет статус без изменений.
type UpdateOrderRequest struct {
	OrderID      string     `json:"order_id"`
	Status       string     `json:"status,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

type UpdateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderTimelineRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// TimelineEvent: событие жизненного цикла заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Status   string    `json:"status,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type GetOrderTimelineResponse struct {
	Events []*TimelineEvent `json:"events"`
}

// OrderServiceServer: серверная часть сервиса заказов.
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
	FinalizePayment(context.Context, *FinalizePaymentRequest) (*FinalizePaymentResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
	UpdateOrder(context.Context, *UpdateOrderRequest) (*UpdateOrderResponse, error)
	GetOrderTimeline(context.Context, *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error)
}

// OrderService_ServiceDesc: описание сервиса для grpc.Server.RegisterService.
var OrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PlaceOrder",
			Handler: unaryHandler(OrderService_PlaceOrder_FullMethodName, func(srv any, ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
				return srv.(OrderServiceServer).PlaceOrder(ctx, req)
			}),
		},
		{
			MethodName: "FinalizePayment",
			Handler: unaryHandler(OrderService_FinalizePayment_FullMethodName, func(srv any, ctx context.Context, req *FinalizePaymentRequest) (*FinalizePaymentResponse, error) {
				return srv.(OrderServiceServer).FinalizePayment(ctx, req)
			}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler(OrderService_GetOrder_FullMethodName, func(srv any, ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
				return srv.(OrderServiceServer).GetOrder(ctx, req)
			}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler(OrderService_ListOrders_FullMethodName, func(srv any, ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
				return srv.(OrderServiceServer).ListOrders(ctx, req)
			}),
		},
		{
			MethodName: "CancelOrder",
			Handler: unaryHandler(OrderService_CancelOrder_FullMethodName, func(srv any, ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
				return srv.(OrderServiceServer).CancelOrder(ctx, req)
			}),
		},
		{
			MethodName: "UpdateOrderStatus",
			Handler: unaryHandler(OrderService_UpdateOrderStatus_FullMethodName, func(srv any, ctx context.Context, req *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
				return srv.(OrderServiceServer).UpdateOrderStatus(ctx, req)
			}),
		},
		{
			MethodName: "UpdateOrder",
			Handler: unaryHandler(OrderService_UpdateOrder_FullMethodName, func(srv any, ctx context.Context, req *UpdateOrderRequest) (*UpdateOrderResponse, error) {
				return srv.(OrderServiceServer).UpdateOrder(ctx, req)
			}),
		},
		{
			MethodName: "GetOrderTimeline",
			Handler: unaryHandler(OrderService_GetOrderTimeline_FullMethodName, func(srv any, ctx context.Context, req *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error) {
				return srv.(OrderServiceServer).GetOrderTimeline(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/v1/orders",
}

// RegisterOrderServiceServer регистрирует реализацию сервиса заказов.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderService_ServiceDesc, srv)
}

// OrderServiceClient: клиент сервиса заказов.
type OrderServiceClient interface {
	PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error)
	FinalizePayment(ctx context.Context, in *FinalizePaymentRequest, opts ...grpc.CallOption) (*FinalizePaymentResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error)
	UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error)
	UpdateOrder(ctx context.Context, in *UpdateOrderRequest, opts ...grpc.CallOption) (*UpdateOrderResponse, error)
	GetOrderTimeline(ctx context.Context, in *GetOrderTimelineRequest, opts ...grpc.CallOption) (*GetOrderTimelineResponse, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиент поверх соединения; JSON-кодек подставляется в каждый вызов.
func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc: cc}
}

func (c *orderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	return invoke[PlaceOrderResponse](ctx, c.cc, OrderService_PlaceOrder_FullMethodName, in, opts)
}

func (c *orderServiceClient) FinalizePayment(ctx context.Context, in *FinalizePaymentRequest, opts ...grpc.CallOption) (*FinalizePaymentResponse, error) {
	return invoke[FinalizePaymentResponse](ctx, c.cc, OrderService_FinalizePayment_FullMethodName, in, opts)
}

func (c *orderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, OrderService_GetOrder_FullMethodName, in, opts)
}

func (c *orderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, OrderService_ListOrders_FullMethodName, in, opts)
}

func (c *orderServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	return invoke[CancelOrderResponse](ctx, c.cc, OrderService_CancelOrder_FullMethodName, in, opts)
}

func (c *orderServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	return invoke[UpdateOrderStatusResponse](ctx, c.cc, OrderService_UpdateOrderStatus_FullMethodName, in, opts)
}

func (c *orderServiceClient) UpdateOrder(ctx context.Context, in *UpdateOrderRequest, opts ...grpc.CallOption) (*UpdateOrderResponse, error) {
	return invoke[UpdateOrderResponse](ctx, c.cc, OrderService_UpdateOrder_FullMethodName, in, opts)
}

func (c *orderServiceClient) GetOrderTimeline(ctx context.Context, in *GetOrderTimelineRequest, opts ...grpc.CallOption) (*GetOrderTimelineResponse, error) {
	return invoke[GetOrderTimelineResponse](ctx, c.cc, OrderService_GetOrderTimeline_FullMethodName, in, opts)
}
