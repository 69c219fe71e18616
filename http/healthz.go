package http

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"brokerbox/outbox-relay/log"
)

const dialTimeout = 1 * time.Second

// Pinger reports whether the backing database connection is alive.
type Pinger interface {
	Ping() error
}

type healthzHandler struct {
	brokerAddrs []string
	db          Pinger
}

// NewHealthzHandler serves liveness and readiness checks. Every request
// verifies the database; requests carrying ?readiness=1 additionally dial
// the configured broker addresses. Failures name the dependency in the
// response body.
func NewHealthzHandler(brokerAddrs []string, db Pinger) http.Handler {
	return &healthzHandler{
		brokerAddrs: brokerAddrs,
		db:          db,
	}
}

func (h healthzHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := h.db.Ping(); err != nil {
		log.Logger.WithError(err).Warn("healthz: database is unreachable")
		respond(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}

	if req.URL.Query().Get("readiness") == "1" {
		if addr, err := h.dialBrokers(); err != nil {
			log.Logger.WithError(err).Warnf("healthz: broker %s is unreachable", addr)
			respond(w, http.StatusServiceUnavailable, fmt.Sprintf("broker %s unreachable", addr))
			return
		}
	}

	respond(w, http.StatusOK, "ok")
}

// dialBrokers returns the first address that does not accept a TCP
// connection, along with the dial error.
func (h healthzHandler) dialBrokers() (string, error) {
	for _, addr := range h.brokerAddrs {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return addr, err
		}
		_ = conn.Close()
	}

	return "", nil
}

func respond(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
