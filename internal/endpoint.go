package internal

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContainerCredentials is the response shape AWS SDKs expect from a container
// credentials endpoint (AWS_CONTAINER_CREDENTIALS_FULL_URI).
type ContainerCredentials struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
}

// ProcessCredentials is the credential_process output format.
// See: https://docs.aws.amazon.com/cli/latest/userguide/cli-configure-sourcing-external.html
type ProcessCredentials struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

// NewProcessCredentials formats creds, advertising deadline as the expiration
// so the CLI asks again before the credentials are inside the expiry window.
func NewProcessCredentials(creds AWSCredential, deadline time.Time) ProcessCredentials {
	return ProcessCredentials{
		Version:         1,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      deadline.UTC().Format(time.RFC3339),
	}
}

// EndpointHandler serves the cache's credentials over HTTP, one cache Get per
// request.
type EndpointHandler struct {
	cache     *CredentialCache
	authToken string
	log       logr.Logger
}

// NewEndpointHandler returns a handler for cache. An empty authToken disables
// the Authorization check.
func NewEndpointHandler(cache *CredentialCache, authToken string, log logr.Logger) *EndpointHandler {
	return &EndpointHandler{cache: cache, authToken: authToken, log: log}
}

func (h *EndpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.authToken != "" {
		got := r.Header.Get("Authorization")
		// SDKs send the token verbatim; curl users tend to add "Bearer ".
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.authToken)) != 1 &&
			subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+h.authToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	creds, deadline, err := h.cache.GetWithDeadline(r.Context())
	if err != nil {
		h.log.Error(err, "serving credentials", "remote", r.RemoteAddr)
		http.Error(w, "failed to get credentials", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ContainerCredentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		Token:           creds.SessionToken,
		Expiration:      deadline.UTC().Format(time.RFC3339),
	}); err != nil {
		h.log.Error(err, "encoding credentials response")
	}
}

// NewServeMux wires the credentials endpoint, Prometheus metrics and a
// health check.
func NewServeMux(cache *CredentialCache, authToken string, gatherer prometheus.Gatherer, log logr.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/credentials", NewEndpointHandler(cache, authToken, log))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
