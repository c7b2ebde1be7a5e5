package service

import "github.com/vetclinic/portal/internal/core/domain"

const (
	adminSection    = "/admin"
	vetSection      = "/vet"
	employeeSection = "/employee"
)

// SelectHeader picks the navigation chrome for path. Role sections only get
// their own chrome when the identity holds that role; anything else falls
// back to the authenticated or anonymous chrome. Access itself is enforced by
// Guard.
func SelectHeader(identity *domain.Identity, path string) domain.HeaderVariant {
	if identity != nil {
		switch identity.Role {
		case domain.RoleAdmin:
			if domain.UnderPrefix(path, adminSection) {
				return domain.HeaderAdmin
			}
		case domain.RoleVeterinary:
			if domain.UnderPrefix(path, vetSection) {
				return domain.HeaderVeterinary
			}
		case domain.RoleEmployee:
			if domain.UnderPrefix(path, employeeSection) {
				return domain.HeaderEmployee
			}
		case domain.RoleUser:
		}
		return domain.HeaderAuthenticated
	}
	return domain.HeaderAnonymous
}
