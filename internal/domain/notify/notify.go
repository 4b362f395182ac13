package notify

import "context"

// Template names the message kinds the escrow engine sends.
type Template string

const (
	TemplateApprovalRequest Template = "approval_request"
	TemplateDeliveryOTP     Template = "delivery_otp"
)

// Message is one outbound notification to a party contact.
type Message struct {
	Recipient string
	Template  Template
	Params    map[string]string
}

// Sender delivers notifications (SMS in production). Delivery is
// fire-and-forget from the state machine's point of view: a failure is
// logged, never retried synchronously, and never rolls back a committed
// transition.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
