package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// Check is one named readiness probe. Probe returns nil when the subsystem
// can serve requests.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler answers liveness probes with 200 and {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthBody{Status: healthStatusOK})
	})
}

// ReadyHandler runs every check and reports each outcome under "checks".
// Any failure turns the answer into 503.
func ReadyHandler(checks ...Check) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		body := healthBody{Status: healthStatusOK}
		code := http.StatusOK

		for _, c := range checks {
			if body.Checks == nil {
				body.Checks = make(map[string]string, len(checks))
			}

			err := c.Probe(hr.Context())
			if err != nil {
				body.Checks[c.Name] = err.Error()
				body.Status = healthStatusUnavailable
				code = http.StatusServiceUnavailable

				continue
			}

			body.Checks[c.Name] = healthStatusOK
		}

		writeHealth(rw, code, body)
	})
}

func writeHealth(rw http.ResponseWriter, code int, body healthBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	//nolint:errcheck // the client is gone when this fails.
	json.NewEncoder(rw).Encode(body)
}
