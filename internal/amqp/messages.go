package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ReceiptSyncMessage asks the worker to push one receipt to the spreadsheet.
// The worker loads the receipt lines from the local database.
type ReceiptSyncMessage struct {
	ReceiptNo string    `json:"receipt_no"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReceiptSyncMessage(receiptNo string) *ReceiptSyncMessage {
	return &ReceiptSyncMessage{
		ReceiptNo: receiptNo,
		Timestamp: time.Now(),
	}
}

func (m *ReceiptSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptSyncMessageFromJSON decodes a message and rejects one without a
// receipt number.
func ReceiptSyncMessageFromJSON(data []byte) (*ReceiptSyncMessage, error) {
	var msg ReceiptSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.ReceiptNo) == "" {
		return nil, errors.New("receipt sync message without receipt_no")
	}
	return &msg, nil
}
