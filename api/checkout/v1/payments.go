package checkoutv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// PaymentServiceName: полное имя gRPC-сервиса платежей.
const PaymentServiceName = "checkout.v1.PaymentService"

// Полные имена методов PaymentService.
const (
	PaymentService_ProcessPayment_FullMethodName    = "/checkout.v1.PaymentService/ProcessPayment"
	PaymentService_GetPayment_FullMethodName        = "/checkout.v1.PaymentService/GetPayment"
	PaymentService_GetPaymentByOrder_FullMethodName = "/checkout.v1.PaymentService/GetPaymentByOrder"
	PaymentService_ListUserPayments_FullMethodName  = "/checkout.v1.PaymentService/ListUserPayments"
	PaymentService_ListTransactions_FullMethodName  = "/checkout.v1.PaymentService/ListTransactions"
	PaymentService_RefundPayment_FullMethodName     = "/checkout.v1.PaymentService/RefundPayment"
)

// Payment: платёж по заказу.
type Payment struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	AmountMinor   int64      `json:"amount_minor"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
	ExternalRef   string     `json:"external_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Transaction: запись журнала операций по платежу.
type Transaction struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Type        string    `json:"type"`
	AmountMinor int64     `json:"amount_minor"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProcessPaymentRequest struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency,omitempty"`
	Method      string `json:"method"`
}

type ProcessPaymentResponse struct {
	Payment *Payment `json:"payment"`
}

type GetPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
}

type GetPaymentResponse struct {
	Payment *Payment `json:"payment"`
}

type GetPaymentByOrderRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type GetPaymentByOrderResponse struct {
	Payment *Payment `json:"payment"`
}

type ListUserPaymentsRequest struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit,omitempty"`
}

type ListUserPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type ListTransactionsRequest struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

// RefundPaymentRequest: возврат, доступен администратору.
type RefundPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason,omitempty"`
}

type RefundPaymentResponse struct {
	Payment *Payment `json:"payment"`
}

// PaymentServiceServer: серверная часть сервиса платежей.
type PaymentServiceServer interface {
	ProcessPayment(context.Context, *ProcessPaymentRequest) (*ProcessPaymentResponse, error)
	GetPayment(context.Context, *GetPaymentRequest) (*GetPaymentResponse, error)
	GetPaymentByOrder(context.Context, *GetPaymentByOrderRequest) (*GetPaymentByOrderResponse, error)
	ListUserPayments(context.Context, *ListUserPaymentsRequest) (*ListUserPaymentsResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	RefundPayment(context.Context, *RefundPaymentRequest) (*RefundPaymentResponse, error)
}

// PaymentService_ServiceDesc: описание сервиса для grpc.Server.RegisterService.
var PaymentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: PaymentServiceName,
	HandlerType: (*PaymentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessPayment",
			Handler: unaryHandler(PaymentService_ProcessPayment_FullMethodName, func(srv any, ctx context.Context, req *ProcessPaymentRequest) (*ProcessPaymentResponse, error) {
				return srv.(PaymentServiceServer).ProcessPayment(ctx, req)
			}),
		},
		{
			MethodName: "GetPayment",
			Handler: unaryHandler(PaymentService_GetPayment_FullMethodName, func(srv any, ctx context.Context, req *GetPaymentRequest) (*GetPaymentResponse, error) {
				return srv.(PaymentServiceServer).GetPayment(ctx, req)
			}),
		},
		{
			MethodName: "GetPaymentByOrder",
			Handler: unaryHandler(PaymentService_GetPaymentByOrder_FullMethodName, func(srv any, ctx context.Context, req *GetPaymentByOrderRequest) (*GetPaymentByOrderResponse, error) {
				return srv.(PaymentServiceServer).GetPaymentByOrder(ctx, req)
			}),
		},
		{
			MethodName: "ListUserPayments",
			Handler: unaryHandler(PaymentService_ListUserPayments_FullMethodName, func(srv any, ctx context.Context, req *ListUserPaymentsRequest) (*ListUserPaymentsResponse, error) {
				return srv.(PaymentServiceServer).ListUserPayments(ctx, req)
			}),
		},
		{
			MethodName: "ListTransactions",
			Handler: unaryHandler(PaymentService_ListTransactions_FullMethodName, func(srv any, ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
				return srv.(PaymentServiceServer).ListTransactions(ctx, req)
			}),
		},
		{
			MethodName: "RefundPayment",
			Handler: unaryHandler(PaymentService_RefundPayment_FullMethodName, func(srv any, ctx context.Context, req *RefundPaymentRequest) (*RefundPaymentResponse, error) {
				return srv.(PaymentServiceServer).RefundPayment(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/v1/payments",
}

// RegisterPaymentServiceServer регистрирует реализацию сервиса платежей.
func RegisterPaymentServiceServer(s grpc.ServiceRegistrar, srv PaymentServiceServer) {
	s.RegisterService(&PaymentService_ServiceDesc, srv)
}

// PaymentServiceClient: клиент сервиса платежей.
type PaymentServiceClient interface {
	ProcessPayment(ctx context.Context, in *ProcessPaymentRequest, opts ...grpc.CallOption) (*ProcessPaymentResponse, error)
	GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*GetPaymentResponse, error)
	GetPaymentByOrder(ctx context.Context, in *GetPaymentByOrderRequest, opts ...grpc.CallOption) (*GetPaymentByOrderResponse, error)
	ListUserPayments(ctx context.Context, in *ListUserPaymentsRequest, opts ...grpc.CallOption) (*ListUserPaymentsResponse, error)
	ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error)
	RefundPayment(ctx context.Context, in *RefundPaymentRequest, opts ...grpc.CallOption) (*RefundPaymentResponse, error)
}

type paymentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPaymentServiceClient создаёт клиент сервиса платежей.
func NewPaymentServiceClient(cc grpc.ClientConnInterface) PaymentServiceClient {
	return &paymentServiceClient{cc: cc}
}

func (c *paymentServiceClient) ProcessPayment(ctx context.Context, in *ProcessPaymentRequest, opts ...grpc.CallOption) (*ProcessPaymentResponse, error) {
	return invoke[ProcessPaymentResponse](ctx, c.cc, PaymentService_ProcessPayment_FullMethodName, in, opts)
}

func (c *paymentServiceClient) GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*GetPaymentResponse, error) {
	return invoke[GetPaymentResponse](ctx, c.cc, PaymentService_GetPayment_FullMethodName, in, opts)
}

func (c *paymentServiceClient) GetPaymentByOrder(ctx context.Context, in *GetPaymentByOrderRequest, opts ...grpc.CallOption) (*GetPaymentByOrderResponse, error) {
	return invoke[GetPaymentByOrderResponse](ctx, c.cc, PaymentService_GetPaymentByOrder_FullMethodName, in, opts)
}

func (c *paymentServiceClient) ListUserPayments(ctx context.Context, in *ListUserPaymentsRequest, opts ...grpc.CallOption) (*ListUserPaymentsResponse, error) {
	return invoke[ListUserPaymentsResponse](ctx, c.cc, PaymentService_ListUserPayments_FullMethodName, in, opts)
}

func (c *paymentServiceClient) ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, c.cc, PaymentService_ListTransactions_FullMethodName, in, opts)
}

func (c *paymentServiceClient) RefundPayment(ctx context.Context, in *RefundPaymentRequest, opts ...grpc.CallOption) (*RefundPaymentResponse, error) {
	return invoke[RefundPaymentResponse](ctx, c.cc, PaymentService_RefundPayment_FullMethodName, in, opts)
}
