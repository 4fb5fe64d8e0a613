package order

import "go.uber.org/fx"

// Module wires the /orders handlers onto the shared Echo router.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
