// Package middleware provides composable handler decorators for the event
// bus: selective logging, per-event telemetry, and a generic chain helper.
package middleware

// Chain composes handler decorators. The first middleware becomes the
// outermost wrapper, so effects applied after the inner handler run in
// reverse declaration order.
func Chain[H any](middlewares ...func(H) H) func(H) H {
	return func(final H) H {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
