package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always returns 200 OK while the process is serving requests.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the credential store, the signing keys and any additional backends such as Redis.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, checks - service not ready"
//	@Router			/readyz [get]
func ReadyzHandler(st store.Store, keys *jwtx.KeySet, extra map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := authsdk.HealthResponse{Status: "ok", Checks: map[string]string{}}
		fail := func(name, msg string) {
			resp.Checks[name] = "error: " + msg
			resp.Status = "degraded"
		}

		resp.Checks["database"] = "ok"
		if err := st.Ping(r.Context()); err != nil {
			fail("database", err.Error())
		}

		resp.Checks["signer"] = "ok"
		if !keys.IsReady() {
			fail("signer", "no keys loaded")
		}

		for name, p := range extra {
			resp.Checks[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				fail(name, err.Error())
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, resp)
	}
}
