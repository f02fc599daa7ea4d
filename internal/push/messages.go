package push

import (
	"fmt"
	"strconv"
)

// TestMessage is the operator's connectivity check.
func TestMessage() Payload {
	return Payload{
		Title: "🧪 Test Notification",
		Body:  "This is a test notification!",
		URL:   DefaultURL,
	}
}

// PaymentReceived announces a submitted payment awaiting approval.
func PaymentReceived(files int, total float64, jobID string) Payload {
	return Payload{
		Title: "💰 New Payment Received!",
		Body:  fmt.Sprintf("%d file(s) - ₹%s", files, formatAmount(total)),
		URL:   DefaultURL,
		JobID: jobID,
	}
}

// PaymentReminder re-announces a payment still waiting for approval.
func PaymentReminder(files int, total float64, jobID string) Payload {
	return Payload{
		Title: "🔔 Payment Reminder!",
		Body:  fmt.Sprintf("%d file(s) waiting for approval - ₹%s", files, formatAmount(total)),
		URL:   DefaultURL,
		JobID: jobID,
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
