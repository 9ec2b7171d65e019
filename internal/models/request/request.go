package request

import "time"

// Kind selects which marketplace a request belongs to. Service requests are
// fulfilled by contractors, material requests by distributors. The two kinds
// are structurally identical and live in separate tables.
type Kind string

const (
	KindService  Kind = "Service"
	KindMaterial Kind = "Material"
)

func ValidKind(k Kind) bool {
	switch k {
	case KindService, KindMaterial:
		return true
	default:
		return false
	}
}

type Status string

const (
	// Opening requests accept new applications.
	Opening Status = "Opening"
	// Closed requests have an approved application.
	Closed Status = "Closed"
)

func ValidStatus(s Status) bool {
	switch s {
	case Opening, Closed:
		return true
	default:
		return false
	}
}

type Request struct {
	Id          string    `json:"id"`
	CustomerId  string    `json:"customerId"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateRequest struct {
	Kind        Kind   `json:"kind" validate:"required"`
	CustomerId  string `json:"customerId" validate:"required,uuid4"`
	Description string `json:"description" validate:"required,max=500"`
}
