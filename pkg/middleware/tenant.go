package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/assetdesk/pkg/composables"
	"github.com/iota-uz/assetdesk/pkg/httpapi"
)

// RequireTenant reads the tenant from header, falling back to the "tenant" query parameter.
// Authentication sits in front of this service, so the tenant is trusted as given.
func RequireTenant(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			if raw == "" {
				raw = strings.TrimSpace(r.URL.Query().Get("tenant"))
			}
			requestID := composables.UseRequestID(r.Context())
			meta := map[string]string{}
			if requestID != "" {
				meta["request_id"] = requestID
			}
			if raw == "" {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant is required", meta)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_INVALID", "tenant must be a uuid", meta)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenantID(r.Context(), tenantID)))
		})
	}
}
