// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// NewServiceClient returns the client used for calls to other municipal
// services (registry, mail relay).
func NewServiceClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
