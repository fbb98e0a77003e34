package handler

import "github.com/julienschmidt/httprouter"

// Router bundles the stock and admin handlers behind a single
// contracts.Handler so the application wires one route surface.
type Router struct {
	stock *StockHandler
	admin *AdminHandler
}

func NewRouter(stock *StockHandler, admin *AdminHandler) *Router {
	return &Router{stock: stock, admin: admin}
}

func (r *Router) RegisterRoutes(router *httprouter.Router) {
	r.stock.RegisterRoutes(router)
	r.admin.RegisterRoutes(router)
}
