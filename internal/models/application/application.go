package application

import (
	"time"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
)

type Status string

const (
	// Pending applications await a customer decision.
	Pending Status = "Pending"
	// Approved closes the parent request.
	Approved Status = "Approved"
	// Rejected applications stay attached to the request and may be given
	// another chance when the request reopens.
	Rejected Status = "Rejected"
)

func ValidStatus(s Status) bool {
	switch s {
	case Pending, Approved, Rejected:
		return true
	default:
		return false
	}
}

// Decision is the customer's verdict on a single application.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

func ValidDecision(d Decision) bool {
	switch d {
	case DecisionApproved, DecisionRejected:
		return true
	default:
		return false
	}
}

type Application struct {
	Id              string       `json:"id"`
	RequestId       string       `json:"requestId"`
	BidderId        string       `json:"bidderId"`
	Kind            request.Kind `json:"kind"`
	Status          Status       `json:"status"`
	CommissionDueAt time.Time    `json:"commissionDueAt"`
	CreatedAt       time.Time    `json:"createdAt"`
}

type CreateApplication struct {
	Kind      request.Kind `json:"kind" validate:"required"`
	RequestId string       `json:"requestId" validate:"required,uuid4"`
	BidderId  string       `json:"bidderId" validate:"required,uuid4"`
}
