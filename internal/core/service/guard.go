package service

import "github.com/vetclinic/portal/internal/core/domain"

// Decision is the outcome of guarding one navigation.
type Decision int

const (
	// DecisionLoading means the session loader has not settled yet; render a
	// neutral placeholder and do not redirect.
	DecisionLoading Decision = iota
	DecisionAllow
	DecisionRedirectHome
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionAllow:
		return "allow"
	case DecisionRedirectHome:
		return "redirect_home"
	}
	return "unknown"
}

// Guard decides whether a protected view may render for identity.
func Guard(required domain.Requirement, identity *domain.Identity, resolved bool) Decision {
	switch {
	case !resolved:
		return DecisionLoading
	case identity == nil:
		return DecisionRedirectHome
	case !required.Admits(identity):
		return DecisionRedirectHome
	default:
		return DecisionAllow
	}
}
