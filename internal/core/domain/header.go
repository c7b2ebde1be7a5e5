package domain

// HeaderVariant names the navigation chrome rendered above a page.
type HeaderVariant string

const (
	HeaderAnonymous     HeaderVariant = "anonymous"
	HeaderAuthenticated HeaderVariant = "authenticated"
	HeaderVeterinary    HeaderVariant = "veterinary"
	HeaderAdmin         HeaderVariant = "admin"
	HeaderEmployee      HeaderVariant = "employee"
)
