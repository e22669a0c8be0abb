package crawler

import "fmt"

const htmlContentType = "text/html; charset=utf-8"

// sameHost compares hostnames byte for byte, ignoring the port.
func sameHost(a, b Entry) bool {
	if a.URL == nil || b.URL == nil {
		return false
	}
	return a.Host() == b.Host()
}

// storageKey names the artifact for a fetched URL: {hash(url)}.html.
func storageKey(h Hasher, rawURL string) (string, error) {
	sum, err := h.Hash([]byte(rawURL))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return sum + ".html", nil
}
