package websearch

import "net/url"

// blockedHosts rejects loopback and the common cloud metadata endpoint,
// preventing the worker-resident fetcher from being pointed at internal
// services (spec §4.7).
var blockedHosts = map[string]bool{
	"localhost":       true,
	"127.0.0.1":       true,
	"0.0.0.0":         true,
	"::1":             true,
	"169.254.169.254": true, // cloud metadata service
}

// IsFetchable reports whether rawURL is safe to fetch: http/https scheme,
// host not in the block list.
func IsFetchable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return !blockedHosts[u.Hostname()]
}
