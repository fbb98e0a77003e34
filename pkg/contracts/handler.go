package contracts

import "github.com/julienschmidt/httprouter"

// Handler is implemented by every service's HTTP surface so the application
// shell can mount it without knowing the domain.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
