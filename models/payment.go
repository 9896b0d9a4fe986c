package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentType string

const (
	PaymentSubscription PaymentType = "subscription"
	PaymentBoost        PaymentType = "boost"
)

const PaymentStatusPaid = "paid"

// Payment is written once per completed checkout session and never updated.
// SessionID carries a unique index.
type Payment struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Email         string              `bson:"email" json:"email"`
	Type          PaymentType         `bson:"type" json:"type"`
	Amount        int64               `bson:"amount" json:"amount"`
	Currency      string              `bson:"currency" json:"currency"`
	TransactionID string              `bson:"transactionId" json:"transactionId"`
	SessionID     string              `bson:"sessionId" json:"sessionId"`
	Status        string              `bson:"status" json:"status"`
	PaidAt        time.Time           `bson:"paidAt" json:"paidAt"`
	IssueID       *primitive.ObjectID `bson:"issueId,omitempty" json:"issueId,omitempty"`
}
