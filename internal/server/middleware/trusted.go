package middleware

import (
	"net"
	"net/http"
)

// TrustedCIDR restricts a route to clients whose X-Real-IP falls inside the
// given subnet. An empty subnet disables the check. An invalid subnet is a
// configuration error and fails server start.
func TrustedCIDR(cidr string) func(http.Handler) http.Handler {
	var ipnet *net.IPNet
	if cidr != "" {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid trusted_subnet: " + err.Error())
		}
		ipnet = n
	}

	return func(next http.Handler) http.Handler {
		if ipnet == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(r.Header.Get("X-Real-IP"))
			if ip == nil || !ipnet.Contains(ip) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
