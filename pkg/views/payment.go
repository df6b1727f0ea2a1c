package views

// PaymentRequest is the body the ordering service sends to the payment gateway.
// Amount is a pointer so that a missing amount is distinguishable from zero.
type PaymentRequest struct {
	CustomerID string   `json:"customerId" binding:"required"`
	OrderID    string   `json:"orderId" binding:"required"`
	ProductID  string   `json:"productId" binding:"required"`
	Amount     *float64 `json:"amount" binding:"required"`
}

// StageResponse is the body of every stage-tagged saga or gateway failure.
type StageResponse struct {
	Status        string `json:"status"`
	Stage         string `json:"stage"`
	Message       string `json:"message"`
	OrderID       string `json:"orderId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// PaymentResponse is the gateway's success body.
type PaymentResponse struct {
	Status        string `json:"status"`
	PaymentStatus bool   `json:"paymentStatus"`
}
