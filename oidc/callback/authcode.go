package callback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openrp/openrp/oidc"
)

// AuthCode creates an authorization code callback handler which correlates
// the provider's redirect against the flow's stored authorization requests
// and completes the flow (token exchange plus identity resolution).
//
// The ContextKeyFunc supplies the interaction context key the original
// request was stored under.  The SuccessResponseFunc is used to create a
// response when the callback succeeds, the ErrorResponseFunc when it fails.
func AuthCode(ctx context.Context, f *oidc.Flow, ckFn ContextKeyFunc, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	if f == nil {
		return nil, fmt.Errorf("%s: flow is nil: %w", op, oidc.ErrNilParameter)
	}
	if ckFn == nil {
		return nil, fmt.Errorf("%s: context key func is nil: %w", op, oidc.ErrNilParameter)
	}
	if sFn == nil {
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrNilParameter)
	}
	if eFn == nil {
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrNilParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found
		if err := req.ParseForm(); err != nil {
			eFn("", err, w, req)
			return
		}
		resp := oidc.AuthorizationResponseFromValues(req.Form)

		contextKey, err := ckFn(req)
		if err != nil {
			eFn(resp.State, err, w, req)
			return
		}

		a, err := f.Finish(ctx, contextKey, resp)
		if err != nil {
			eFn(resp.State, err, w, req)
			return
		}
		sFn(resp.State, a, w, req)
	}, nil
}
