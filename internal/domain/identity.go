package domain

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEditor   Role = "EDITOR"
	RoleCustomer Role = "CUSTOMER"
)

type Capability string

const (
	CapViewDashboard  Capability = "view_dashboard"
	CapManageOrders   Capability = "manage_orders"
	CapManageProducts Capability = "manage_products"
	CapManageStores   Capability = "manage_stores"
	CapManagePosts    Capability = "manage_posts"
)

// Identity is what an admin session resolves to.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Roles  []Role `json:"roles"`
}
