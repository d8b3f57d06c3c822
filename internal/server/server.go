package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"budgetline/internal/config"
	"budgetline/internal/domain"
	"budgetline/internal/engine"
	"budgetline/internal/engine/auth"
	"budgetline/internal/repo"
	"budgetline/internal/report"
	"budgetline/internal/wbs"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"actor lacks permission budget.approve"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"permission\":\"budget.approve\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Budgetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Budgetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCompanies(group, cfg.Engine)
	registerDepartments(group, cfg.Engine)
	registerCostGroups(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerPhases(group, cfg.Engine)
	registerBudgetItems(group, cfg.Engine)
	registerProcesses(group, cfg.Engine)
	registerTransactions(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "wbs") && strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "wbs_conflict", msg, nil)
	case strings.Contains(lowered, "transition"),
		strings.Contains(lowered, "already started"),
		strings.Contains(lowered, "already finished"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "locked"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func requirePermission(ctx context.Context, e engine.Engine, companyID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, companyID, principal.ActorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
}

func requireGlobalPermission(ctx context.Context, e engine.Engine, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	companyID := ""
	if e.Config != nil {
		companyID = e.Config.Company.ID
	}
	return requirePermission(ctx, e, companyID, perm)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, req *http.Request) {
		oas := api.OpenAPI()
		ensureDefaultErrorResponses(oas)
		applyAuthSecurity(oas, basePath)
		data, err := oas.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			if _, ok := op.Responses["default"]; ok {
				continue
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Budgetline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCompanyRequest `json:"body"`
	}) (*struct {
		Body CompanyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := e.Repo.ListCompanies(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		// The first company can be created by any authenticated actor, who
		// becomes its owner. After that, company.admin is required.
		if len(existing) > 0 {
			if err := requireGlobalPermission(ctx, e, "company.admin"); err != nil {
				return nil, handleError(err)
			}
		}
		c, err := e.InitCompany(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.SeedRBAC(ctx, c.ID, config.Default(c.ID).RBAC.Roles, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyResponse `json:"body"`
		}{Body: companyResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CompanyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCompanies(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CompanyResponse, 0, len(items))
		for _, c := range items {
			res = append(res, companyResponse(c))
		}
		return &struct {
			Body []CompanyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}",
		Summary:     "Get company",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body CompanyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetCompany(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyResponse `json:"body"`
		}{Body: companyResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company-config",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/config",
		Summary:     "Get company config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body CompanyConfigResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetCompanyConfig(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-company-config",
		Method:      http.MethodPut,
		Path:        "/companies/{company_id}/config",
		Summary:     "Import company config from YAML",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string              `path:"company_id"`
		Body      ImportConfigRequest `json:"body"`
	}) (*struct {
		Body CompanyConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		cfg, err := config.FromYAML([]byte(input.Body.YAML))
		if err != nil {
			return nil, handleError(err)
		}
		if cfg.Company.ID != input.CompanyID {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "config company id does not match path", map[string]any{"config": cfg.Company.ID, "path": input.CompanyID})
		}
		if err := e.Repo.UpsertCompanyConfig(ctx, input.CompanyID, cfg); err != nil {
			return nil, handleError(err)
		}
		if err := e.SeedRBAC(ctx, input.CompanyID, cfg.RBAC.Roles, ""); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-department",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                  `path:"company_id"`
		Body      CreateDepartmentRequest `json:"body"`
	}) (*struct {
		Body DepartmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDepartment(ctx, input.CompanyID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DepartmentResponse `json:"body"`
		}{Body: departmentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/departments",
		Summary:     "List departments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []DepartmentResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListDepartments(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]DepartmentResponse, 0, len(items))
		for _, d := range items {
			res = append(res, departmentResponse(d))
		}
		return &struct {
			Body []DepartmentResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerCostGroups(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-cost-group",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/cost-groups",
		Summary:       "Create cost group",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                 `path:"company_id"`
		Body      CreateCostGroupRequest `json:"body"`
	}) (*struct {
		Body CostGroupResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.DepartmentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "department_id is required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateCostGroup(ctx, input.Body.DepartmentID, input.Body.Name, input.Body.Kind, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CostGroupResponse `json:"body"`
		}{Body: costGroupResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cost-groups",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/cost-groups",
		Summary:     "List cost groups of a department",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID    string `path:"company_id"`
		DepartmentID string `query:"department_id"`
	}) (*struct {
		Body []CostGroupResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.DepartmentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "department_id is required", nil)
		}
		items, err := e.Repo.ListCostGroups(ctx, input.DepartmentID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CostGroupResponse, 0, len(items))
		for _, g := range items {
			res = append(res, costGroupResponse(g))
		}
		return &struct {
			Body []CostGroupResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		Body      CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, input.CompanyID, input.Body.Name, input.Body.StartDate, input.Body.EndDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProjectResponse, 0, len(items))
		for _, p := range items {
			res = append(res, projectResponse(p))
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.CompanyID != input.CompanyID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "project not found in company", nil)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-phase",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/projects/{project_id}/phases",
		Summary:       "Create project phase",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string             `path:"company_id"`
		ProjectID string             `path:"project_id"`
		Body      CreatePhaseRequest `json:"body"`
	}) (*struct {
		Body PhaseResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ph, err := e.CreatePhase(ctx, input.ProjectID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PhaseResponse `json:"body"`
		}{Body: phaseResponse(ph)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-phases",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects/{project_id}/phases",
		Summary:     "List project phases",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []PhaseResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPhases(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]PhaseResponse, 0, len(items))
		for _, ph := range items {
			res = append(res, phaseResponse(ph))
		}
		return &struct {
			Body []PhaseResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerBudgetItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-budget-item",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/budget-items",
		Summary:       "Create budget item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                  `path:"company_id"`
		Body      CreateBudgetItemRequest `json:"body"`
	}) (*struct {
		Body BudgetItemResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "budget.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		values, err := monthlyIn(input.Body.MonthlyValues)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.BudgetItemCreateOptions{
			Name:          input.Body.Name,
			Year:          input.Body.Year,
			MonthlyValues: values,
			ActorID:       actorID,
		}
		if input.Body.CostGroupID != nil {
			opts.CostGroupID = *input.Body.CostGroupID
		}
		if input.Body.PhaseID != nil {
			opts.PhaseID = *input.Body.PhaseID
		}
		it, err := e.CreateBudgetItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BudgetItemResponse `json:"body"`
		}{Body: budgetItemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-budget-items",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/budget-items",
		Summary:     "List budget items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID   string `path:"company_id"`
		CostGroupID string `query:"cost_group_id"`
		PhaseID     string `query:"phase_id"`
		Year        int    `query:"year"`
		Status      string `query:"status" enum:"draft,pending,approved,rejected"`
	}) (*struct {
		Body []BudgetItemResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBudgetItems(ctx, repo.BudgetItemFilters{
			CostGroupID: input.CostGroupID,
			PhaseID:     input.PhaseID,
			Year:        input.Year,
			Status:      input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]BudgetItemResponse, 0, len(items))
		for _, it := range items {
			res = append(res, budgetItemResponse(it))
		}
		return &struct {
			Body []BudgetItemResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-budget-item",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/budget-items/{id}",
		Summary:     "Get budget item with revision history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body BudgetItemResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		it, err := e.GetBudgetItem(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BudgetItemResponse `json:"body"`
		}{Body: budgetItemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-budget-item-values",
		Method:      http.MethodPut,
		Path:        "/companies/{company_id}/budget-items/{id}/values",
		Summary:     "Save monthly values (draft only)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                  `path:"company_id"`
		ID        string                  `path:"id"`
		Body      SaveBudgetValuesRequest `json:"body"`
	}) (*struct {
		Body BudgetItemResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "budget.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		values, err := monthlyIn(input.Body.MonthlyValues)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := e.SaveBudgetItem(ctx, input.ID, values, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BudgetItemResponse `json:"body"`
		}{Body: budgetItemResponse(it)}, nil
	})

	registerBudgetTransition(api, e, "submit-budget-item", "submit", "Submit budget item for approval", "budget.submit", e.SubmitBudgetItem)
	registerBudgetTransition(api, e, "approve-budget-item", "approve", "Approve budget item", "budget.approve", e.ApproveBudgetItem)
	registerBudgetTransition(api, e, "reject-budget-item", "reject", "Reject budget item", "budget.approve", e.RejectBudgetItem)
	registerBudgetTransition(api, e, "withdraw-budget-item", "withdraw", "Withdraw budget item back to draft", "budget.submit", e.WithdrawBudgetItem)
	registerBudgetTransition(api, e, "revert-budget-item", "revert", "Revert budget item to the last approved values", "budget.edit", e.RevertBudgetItem)

	huma.Register(api, huma.Operation{
		OperationID: "revise-budget-item",
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/budget-items/{id}/revise",
		Summary:     "Open a new revision of an approved budget item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string        `path:"company_id"`
		ID        string        `path:"id"`
		Body      ReviseRequest `json:"body"`
	}) (*struct {
		Body BudgetItemResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "budget.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.ReviseBudgetItem(ctx, input.ID, input.Body.EditorName, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BudgetItemResponse `json:"body"`
		}{Body: budgetItemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-budget-item",
		Method:      http.MethodDelete,
		Path:        "/companies/{company_id}/budget-items/{id}",
		Summary:     "Delete budget item",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "budget.delete"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBudgetItem(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBudgetTransition(api huma.API, e engine.Engine, opID, action, summary, perm string, fn func(context.Context, string, string) (domain.BudgetItem, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/budget-items/{id}/" + action,
		Summary:     summary,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body BudgetItemResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, perm); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := fn(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BudgetItemResponse `json:"body"`
		}{Body: budgetItemResponse(it)}, nil
	})
}

func registerProcesses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/projects/{project_id}/processes",
		Summary:       "Create project process",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		ProjectID string               `path:"project_id"`
		Body      CreateProcessRequest `json:"body"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "process.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProcess(ctx, engine.ProcessCreateOptions{
			ProjectID: input.ProjectID,
			WBS:       input.Body.WBS,
			Name:      input.Body.Name,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects/{project_id}/processes",
		Summary:     "List processes in WBS order",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ProcessResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProcesses(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProcessResponse, 0, len(items))
		for _, p := range items {
			res = append(res, processResponse(p))
		}
		return &struct {
			Body []ProcessResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-tree",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects/{project_id}/processes/tree",
		Summary:     "Schedule tree with rolled-up group dates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ProcessRowResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rows, err := e.ProcessRows(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProcessRowResponse, 0, len(rows))
		for _, row := range rows {
			res = append(res, ProcessRowResponse{
				Process: processResponse(row.Process),
				Level:   row.Level,
				IsGroup: row.IsGroup,
				Start:   row.Start,
				End:     row.End,
				Days:    row.Days,
			})
		}
		return &struct {
			Body []ProcessRowResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-gantt",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects/{project_id}/processes/gantt",
		Summary:     "Gantt chart geometry for the project schedule",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID   string `path:"company_id"`
		ProjectID   string `path:"project_id"`
		WindowStart string `query:"window_start" format:"date"`
		WindowEnd   string `query:"window_end" format:"date"`
	}) (*struct {
		Body []GanttRowResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rows, err := e.ProcessRows(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		windowStart, windowEnd := ganttWindow(rows, input.WindowStart, input.WindowEnd)
		today := todayFor(e)
		res := make([]GanttRowResponse, 0, len(rows))
		for _, row := range rows {
			out := GanttRowResponse{
				Process: processResponse(row.Process),
				Level:   row.Level,
				IsGroup: row.IsGroup,
			}
			planned := report.GanttSpan(row.Start, row.End, windowStart, windowEnd)
			out.Planned = GanttBarResponse{LeftPct: planned.LeftPct, WidthPct: planned.WidthPct}
			if !row.IsGroup && row.Process.ActualStartDate != nil {
				actualEnd := report.ActualBarEnd(row.Process, today)
				actual := report.GanttSpan(*row.Process.ActualStartDate, actualEnd, windowStart, windowEnd)
				out.Actual = &GanttBarResponse{LeftPct: actual.LeftPct, WidthPct: actual.WidthPct}
				out.ActualEnd = actualEnd
			}
			res = append(res, out)
		}
		return &struct {
			Body []GanttRowResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/processes/{id}",
		Summary:     "Get process with revision history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProcess(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process",
		Method:      http.MethodPatch,
		Path:        "/companies/{company_id}/processes/{id}",
		Summary:     "Update process; a WBS change renames the whole subtree",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		ID        string               `path:"id"`
		Body      UpdateProcessRequest `json:"body"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "process.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProcess(ctx, engine.ProcessUpdateOptions{
			ID:        input.ID,
			Name:      input.Body.Name,
			WBS:       input.Body.WBS,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p)}, nil
	})

	registerProcessTransition(api, e, "submit-process", "submit", "Submit process for approval", "process.submit", e.SubmitProcess)
	registerProcessTransition(api, e, "approve-process", "approve", "Approve process", "process.approve", e.ApproveProcess)
	registerProcessTransition(api, e, "reject-process", "reject", "Reject process", "process.approve", e.RejectProcess)
	registerProcessTransition(api, e, "withdraw-process", "withdraw", "Withdraw process back to draft", "process.submit", e.WithdrawProcess)
	registerProcessTransition(api, e, "start-process", "start", "Record actual start", "process.edit", e.StartProcess)
	registerProcessTransition(api, e, "finish-process", "finish", "Record actual finish", "process.edit", e.FinishProcess)
	registerProcessTransition(api, e, "revert-process", "revert", "Revert process to the last approved dates", "process.edit", e.RevertProcess)

	huma.Register(api, huma.Operation{
		OperationID: "revise-process",
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/processes/{id}/revise",
		Summary:     "Open a new revision of an approved process",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string        `path:"company_id"`
		ID        string        `path:"id"`
		Body      ReviseRequest `json:"body"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "process.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ReviseProcess(ctx, input.ID, input.Body.EditorName, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-process",
		Method:      http.MethodDelete,
		Path:        "/companies/{company_id}/processes/{id}",
		Summary:     "Delete process",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "process.delete"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProcess(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProcessTransition(api huma.API, e engine.Engine, opID, action, summary, perm string, fn func(context.Context, string, string) (domain.ProjectProcess, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/processes/{id}/" + action,
		Summary:     summary,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, perm); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := fn(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p)}, nil
	})
}

func registerTransactions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-transaction",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/transactions",
		Summary:       "Record actual transaction",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                   `path:"company_id"`
		Body      CreateTransactionRequest `json:"body"`
	}) (*struct {
		Body TransactionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.CompanyID, "transaction.edit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTransaction(ctx, domain.Transaction{
			CompanyID:   input.CompanyID,
			CostGroupID: input.Body.CostGroupID,
			PhaseID:     input.Body.PhaseID,
			Name:        input.Body.Name,
			AmountCents: input.Body.AmountCents,
			Date:        input.Body.Date,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransactionResponse `json:"body"`
		}{Body: transactionResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/transactions",
		Summary:     "List transactions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID   string `path:"company_id"`
		CostGroupID string `query:"cost_group_id"`
		PhaseID     string `query:"phase_id"`
		FromDate    string `query:"from" format:"date"`
		ToDate      string `query:"to" format:"date"`
	}) (*struct {
		Body []TransactionResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTransactions(ctx, repo.TransactionFilters{
			CompanyID:   input.CompanyID,
			CostGroupID: input.CostGroupID,
			PhaseID:     input.PhaseID,
			FromDate:    input.FromDate,
			ToDate:      input.ToDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TransactionResponse, 0, len(items))
		for _, t := range items {
			res = append(res, transactionResponse(t))
		}
		return &struct {
			Body []TransactionResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-transaction",
		Method:      http.MethodDelete,
		Path:        "/companies/{company_id}/transactions/{id}",
		Summary:     "Delete transaction",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "transaction.edit"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteTransaction(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "monthly-report",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/reports/monthly",
		Summary:     "Planned vs actual monthly totals",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID   string `path:"company_id"`
		Year        int    `query:"year"`
		CostGroupID string `query:"cost_group_id"`
		PhaseID     string `query:"phase_id"`
		Status      string `query:"status" enum:"draft,pending,approved,rejected"`
	}) (*struct {
		Body MonthlyReportResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		year := input.Year
		if year == 0 && e.Config != nil {
			year = e.Config.Budget.DefaultYear
		}
		if year == 0 {
			year = todayYear(e)
		}
		items, err := e.Repo.ListBudgetItems(ctx, repo.BudgetItemFilters{
			CostGroupID: input.CostGroupID,
			PhaseID:     input.PhaseID,
			Year:        year,
			Status:      input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		txs, err := e.Repo.ListTransactions(ctx, repo.TransactionFilters{
			CompanyID:   input.CompanyID,
			CostGroupID: input.CostGroupID,
			PhaseID:     input.PhaseID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MonthlyReportResponse `json:"body"`
		}{Body: MonthlyReportResponse{
			Year:    year,
			Planned: report.MonthlyTotals(items),
			Actual:  report.ActualMonthlyTotals(txs, year),
		}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID  string `path:"company_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"company,department,cost_group,project,phase,budget_item,process,transaction,rbac,apikey"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.CompanyID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/me/permissions",
		Summary:     "Current actor permissions within a company",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		who, err := e.WhoAmI(ctx, input.CompanyID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     who.ActorID,
			CompanyID:   input.CompanyID,
			Roles:       nonNilSlice(who.Roles),
			Permissions: nonNilSlice(who.Permissions),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/rbac/roles/grant",
		Summary:     "Grant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		Body      RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.CompanyID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		Body      RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.CompanyID, "company.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.CompanyID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		companyID := principal.CompanyID
		if companyID == "" && e.Config != nil {
			companyID = e.Config.Company.ID
		}
		if len(perms) == 0 && companyID != "" {
			if who, err := e.WhoAmI(ctx, companyID, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = who.Roles
				}
				perms = who.Permissions
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			CompanyID:   companyID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key; the plaintext key is returned once",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, raw, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			Key:       raw,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List own API keys",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Delete own API key",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		company := strings.TrimSpace(input.Body.CompanyID)
		if actor == "" || company == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and company_id are required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, company, input.Body.Roles, input.Body.Scopes)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	req.Body = io.NopCloser(bytes.NewBuffer(data))
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func todayFor(e engine.Engine) string {
	if e.Now != nil {
		return e.Now().UTC().Format(domain.DateLayout)
	}
	return time.Now().UTC().Format(domain.DateLayout)
}

func todayYear(e engine.Engine) int {
	if e.Now != nil {
		return e.Now().UTC().Year()
	}
	return time.Now().UTC().Year()
}

// ganttWindow picks the chart range: explicit bounds win, otherwise the
// min/max of the rendered rows.
func ganttWindow(rows []wbs.Row, start, end string) (string, string) {
	if start != "" && end != "" {
		return start, end
	}
	minStart, maxEnd := "", ""
	for _, row := range rows {
		if row.Start != "" && (minStart == "" || row.Start < minStart) {
			minStart = row.Start
		}
		if row.End != "" && (maxEnd == "" || row.End > maxEnd) {
			maxEnd = row.End
		}
	}
	if start == "" {
		start = minStart
	}
	if end == "" {
		end = maxEnd
	}
	return start, end
}
