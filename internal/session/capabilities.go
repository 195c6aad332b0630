package session

import (
	"slices"

	"github.com/asgared/elarcabeer/internal/domain"
)

var roleCapabilities = map[domain.Role][]domain.Capability{
	domain.RoleAdmin: {
		domain.CapViewDashboard,
		domain.CapManageOrders,
		domain.CapManageProducts,
		domain.CapManageStores,
		domain.CapManagePosts,
	},
	domain.RoleManager: {
		domain.CapViewDashboard,
		domain.CapManageOrders,
		domain.CapManageProducts,
		domain.CapManageStores,
	},
	domain.RoleEditor: {
		domain.CapViewDashboard,
		domain.CapManagePosts,
	},
	domain.RoleCustomer: nil,
}

// Capabilities returns the union of what the roles grant, sorted. Unknown
// roles grant nothing.
func Capabilities(roles []domain.Role) []domain.Capability {
	var caps []domain.Capability
	for _, r := range roles {
		for _, c := range roleCapabilities[r] {
			if !slices.Contains(caps, c) {
				caps = append(caps, c)
			}
		}
	}
	slices.Sort(caps)
	return caps
}

func Has(roles []domain.Role, c domain.Capability) bool {
	for _, r := range roles {
		if slices.Contains(roleCapabilities[r], c) {
			return true
		}
	}
	return false
}
