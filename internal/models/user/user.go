package user

import "time"

type Role string

const (
	RoleCustomer    Role = "Customer"
	RoleContractor  Role = "Contractor"
	RoleDistributor Role = "Distributor"
)

type User struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
