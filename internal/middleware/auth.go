package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/auth"
)

var partnerRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flexishop_partner_requests_total",
		Help: "JSON API requests admitted by the partner gate, by partner.",
	},
	[]string{"partner"},
)

// Auth puts the JSON API behind the partner gate. Every other surface stays
// open to shoppers, and CORS preflights pass so browsers can learn which
// headers to send.
func Auth(gate auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SurfaceOf(r.URL.Path) != SurfaceAPI || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			client, err := gate.Authenticate(r)
			if err != nil {
				logger.Warn("partner request rejected",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("request_id", getRequestID(r)),
					zap.Error(err),
				)
				if challenge := gate.Challenge(); challenge != "" {
					w.Header().Set("WWW-Authenticate", challenge)
				}
				writeFailure(w, r, http.StatusUnauthorized, err.Error())
				return
			}

			partnerRequestsTotal.WithLabelValues(client.Name).Inc()
			logger.Debug("partner request admitted",
				zap.String("partner", client.Name),
				zap.String("via", string(client.Via)),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(auth.WithClient(r.Context(), client)))
		})
	}
}
