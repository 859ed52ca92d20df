package interceptx

import (
	"context"

	"connectrpc.com/connect"
)

// ConnectInterceptor runs interceptors around every unary RPC. The Method is
// derived from the procedure and named with namer; a nil namer uses MethodNamer.
func ConnectInterceptor(namer Namer, interceptors ...Interceptor) connect.UnaryInterceptorFunc {
	if namer == nil {
		namer = MethodNamer()
	}
	chain := Chain(interceptors...)
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			method := ParseProcedure(req.Spec().Procedure)
			call := NewCall(method, namer.MetricName(method))

			run := chain(func(ctx context.Context, _ *Call) (any, error) {
				return next(ctx, req)
			})
			out, err := run(WithCall(ctx, call), call)
			resp, _ := out.(connect.AnyResponse)
			return resp, err
		}
	}
}
