package chi

import (
	"fmt"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is the full HTTP API. Roles that do not host a component
// answer its routes with 501 through Unimplemented.
type ServerInterface interface {
	// POST /token
	IssueToken(w http.ResponseWriter, r *http.Request)
	// GET /balance/{tokenId}
	GetBalance(w http.ResponseWriter, r *http.Request, tokenId string)
	// GET /tokens/{tokenId}
	GetTokenReport(w http.ResponseWriter, r *http.Request, tokenId string)
	// GET /company/basic
	ListCompanies(w http.ResponseWriter, r *http.Request, params ListCompaniesParams)
	// GET /company/detail
	GetCompanyDetail(w http.ResponseWriter, r *http.Request, params GetCompanyDetailParams)
	// POST /pay
	Pay(w http.ResponseWriter, r *http.Request, params PayParams)
	// POST /tasks
	CreateTask(w http.ResponseWriter, r *http.Request)
	// GET /tasks
	ListTasks(w http.ResponseWriter, r *http.Request)
	// GET /tasks/{taskId}
	GetTask(w http.ResponseWriter, r *http.Request, taskId string)
	// POST /tasks/{taskId}/cancel
	CancelTask(w http.ResponseWriter, r *http.Request, taskId string)
	// GET /health
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	Metrics(w http.ResponseWriter, r *http.Request)
}

// Unimplemented answers every route with 501.
type Unimplemented struct{}

func (Unimplemented) IssueToken(w http.ResponseWriter, _ *http.Request) { notImplemented(w) }

func (Unimplemented) GetBalance(w http.ResponseWriter, _ *http.Request, _ string) { notImplemented(w) }

func (Unimplemented) GetTokenReport(w http.ResponseWriter, _ *http.Request, _ string) {
	notImplemented(w)
}

func (Unimplemented) ListCompanies(w http.ResponseWriter, _ *http.Request, _ ListCompaniesParams) {
	notImplemented(w)
}

func (Unimplemented) GetCompanyDetail(w http.ResponseWriter, _ *http.Request, _ GetCompanyDetailParams) {
	notImplemented(w)
}

func (Unimplemented) Pay(w http.ResponseWriter, _ *http.Request, _ PayParams) { notImplemented(w) }

func (Unimplemented) CreateTask(w http.ResponseWriter, _ *http.Request) { notImplemented(w) }

func (Unimplemented) ListTasks(w http.ResponseWriter, _ *http.Request) { notImplemented(w) }

func (Unimplemented) GetTask(w http.ResponseWriter, _ *http.Request, _ string) { notImplemented(w) }

func (Unimplemented) CancelTask(w http.ResponseWriter, _ *http.Request, _ string) { notImplemented(w) }

func (Unimplemented) HealthCheck(w http.ResponseWriter, _ *http.Request) { notImplemented(w) }

func (Unimplemented) Metrics(w http.ResponseWriter, _ *http.Request) { notImplemented(w) }

func notImplemented(w http.ResponseWriter) {
	writeError(w, http.StatusNotImplemented, ErrorResponseCodeNotImplemented, "not hosted by this service")
}

// ParamError is a path, query or header parameter that failed to bind.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parameter %q is required", e.Param)
	}
	return fmt.Sprintf("invalid parameter %q: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// MiddlewareFunc wraps a single route handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ChiServerOptions configures Handler.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chirouter.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// serverInterfaceWrapper binds parameters and calls the ServerInterface.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	middlewares      []MiddlewareFunc
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *serverInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	var handler http.Handler = h
	for _, m := range siw.middlewares {
		handler = m(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *serverInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chirouter.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.errorHandlerFunc(w, r, &ParamError{Param: name, Err: err})
		return false
	}
	return true
}

func (siw *serverInterfaceWrapper) headerParam(w http.ResponseWriter, r *http.Request, name string, dest **string) bool {
	values, found := r.Header[http.CanonicalHeaderKey(name)]
	if !found {
		return true
	}
	if len(values) != 1 {
		siw.errorHandlerFunc(w, r, &ParamError{Param: name, Err: fmt.Errorf("expected one value, got %d", len(values))})
		return false
	}
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, values[0], &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: false})
	if err != nil {
		siw.errorHandlerFunc(w, r, &ParamError{Param: name, Err: err})
		return false
	}
	*dest = &v
	return true
}

func (siw *serverInterfaceWrapper) IssueToken(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.handler.IssueToken)
}

func (siw *serverInterfaceWrapper) GetBalance(w http.ResponseWriter, r *http.Request) {
	var tokenId string
	if !siw.pathParam(w, r, "tokenId", &tokenId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.GetBalance(w, r, tokenId) })
}

func (siw *serverInterfaceWrapper) GetTokenReport(w http.ResponseWriter, r *http.Request) {
	var tokenId string
	if !siw.pathParam(w, r, "tokenId", &tokenId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.GetTokenReport(w, r, tokenId) })
}

func (siw *serverInterfaceWrapper) ListCompanies(w http.ResponseWriter, r *http.Request) {
	var params ListCompaniesParams
	if err := runtime.BindQueryParameter("form", true, false, "keyword", r.URL.Query(), &params.Keyword); err != nil {
		siw.errorHandlerFunc(w, r, &ParamError{Param: "keyword", Err: err})
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.ListCompanies(w, r, params) })
}

func (siw *serverInterfaceWrapper) GetCompanyDetail(w http.ResponseWriter, r *http.Request) {
	var params GetCompanyDetailParams
	if _, ok := r.URL.Query()["id"]; !ok {
		siw.errorHandlerFunc(w, r, &ParamError{Param: "id"})
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "id", r.URL.Query(), &params.Id); err != nil {
		siw.errorHandlerFunc(w, r, &ParamError{Param: "id", Err: err})
		return
	}
	if !siw.headerParam(w, r, "X-Payment-Token", &params.XPaymentToken) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.GetCompanyDetail(w, r, params) })
}

func (siw *serverInterfaceWrapper) Pay(w http.ResponseWriter, r *http.Request) {
	var params PayParams
	if !siw.headerParam(w, r, "Idempotency-Key", &params.IdempotencyKey) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.Pay(w, r, params) })
}

func (siw *serverInterfaceWrapper) CreateTask(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.handler.CreateTask)
}

func (siw *serverInterfaceWrapper) ListTasks(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.handler.ListTasks)
}

func (siw *serverInterfaceWrapper) GetTask(w http.ResponseWriter, r *http.Request) {
	var taskId string
	if !siw.pathParam(w, r, "taskId", &taskId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.GetTask(w, r, taskId) })
}

func (siw *serverInterfaceWrapper) CancelTask(w http.ResponseWriter, r *http.Request) {
	var taskId string
	if !siw.pathParam(w, r, "taskId", &taskId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.handler.CancelTask(w, r, taskId) })
}

func (siw *serverInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.handler.HealthCheck)
}

func (siw *serverInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.handler.Metrics)
}

// Handler mounts si on a new chi router with default options.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions mounts si on options.BaseRouter (or a new router).
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chirouter.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		}
	}
	wrapper := serverInterfaceWrapper{
		handler:          si,
		middlewares:      options.Middlewares,
		errorHandlerFunc: options.ErrorHandlerFunc,
	}

	base := options.BaseURL
	r.Group(func(r chirouter.Router) {
		r.Post(base+"/token", wrapper.IssueToken)
		r.Get(base+"/balance/{tokenId}", wrapper.GetBalance)
		r.Get(base+"/tokens/{tokenId}", wrapper.GetTokenReport)
		r.Get(base+"/company/basic", wrapper.ListCompanies)
		r.Get(base+"/company/detail", wrapper.GetCompanyDetail)
		r.Post(base+"/pay", wrapper.Pay)
		r.Post(base+"/tasks", wrapper.CreateTask)
		r.Get(base+"/tasks", wrapper.ListTasks)
		r.Get(base+"/tasks/{taskId}", wrapper.GetTask)
		r.Post(base+"/tasks/{taskId}/cancel", wrapper.CancelTask)
		r.Get(base+"/health", wrapper.HealthCheck)
		r.Get(base+"/metrics", wrapper.Metrics)
	})
	return r
}
