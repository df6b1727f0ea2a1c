package pkg

const HeaderTraceId string = "X-Trace-Id"

const (
	TraceId string = "trace_id"
	OrderId string = "order_id"
	Stage   string = "stage"
)

// OrderStatus is the lifecycle state of an order. pending is the only non-terminal value;
// the store only ever moves an order out of pending.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusFailed        OrderStatus = "failed"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// TransactionStatus is the wire value carried by a transaction event.
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// TransactionStatusOf maps a normalized payment decision to its wire value.
func TransactionStatusOf(approved bool) TransactionStatus {
	if approved {
		return TransactionStatusSuccess
	}
	return TransactionStatusFailed
}

// SagaStage tags a saga failure with the step that produced it.
type SagaStage string

const (
	StageValidation         SagaStage = "validation"
	StageCreateOrder        SagaStage = "create_order"
	StageInitiatePayment    SagaStage = "initiate_payment"
	StagePayment            SagaStage = "payment"
	StagePostPayment        SagaStage = "post_payment"
	StagePublishTransaction SagaStage = "publish_transaction"
)

const (
	ResponseStatusSuccess = "success"
	ResponseStatusError   = "error"
	ResponseStatusWarning = "warning"
)

const (
	BrokerDriverRabbitMQ = "rabbitmq"
	BrokerDriverKafka    = "kafka"
)
