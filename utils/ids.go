package utils

import (
	"strings"

	"github.com/google/uuid"
)

func randomHex(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(s[:n])
}

func NewOrderNumber() string { return "ORD-" + randomHex(8) }

func NewTransactionID() string { return "TRX-" + randomHex(12) }

func NewTicketNumber() string { return "TCK-" + randomHex(8) }
