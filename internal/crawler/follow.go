package crawler

import (
	"fmt"
	"strings"
)

// FollowMode restricts which discovered links are eligible for fetching.
// The zero value is FollowDefault and resolves to DefaultFollowMode.
type FollowMode int

// Supported follow modes. FollowSameHost and FollowSameDomain both require
// the exact root host; subdomains are not distinguished.
const (
	FollowDefault FollowMode = iota
	FollowAll
	FollowSameHost
	FollowSameDomain
	FollowSubPath
)

// DefaultFollowMode keeps the crawl on the root host.
const DefaultFollowMode = FollowSameDomain

// FollowModeFromLevel maps the numeric level used on the command line and in
// config files (0 all, 1 same host, 2 same domain, 3 sub-path) to a mode.
func FollowModeFromLevel(level int) (FollowMode, error) {
	m := FollowMode(level + 1)
	if level < 0 || m > FollowSubPath {
		return FollowDefault, fmt.Errorf("follow mode level must be between 0 and 3, got %d", level)
	}
	return m, nil
}

// Level is the inverse of FollowModeFromLevel. FollowDefault reports the
// level of DefaultFollowMode.
func (m FollowMode) Level() int {
	return int(m.resolve()) - 1
}

// Valid reports whether m is one of the supported modes.
func (m FollowMode) Valid() bool {
	return m >= FollowDefault && m <= FollowSubPath
}

func (m FollowMode) resolve() FollowMode {
	if m == FollowDefault {
		return DefaultFollowMode
	}
	return m
}

func (m FollowMode) String() string {
	switch m {
	case FollowDefault:
		return "default"
	case FollowAll:
		return "all"
	case FollowSameHost:
		return "same-host"
	case FollowSameDomain:
		return "same-domain"
	case FollowSubPath:
		return "sub-path"
	default:
		return fmt.Sprintf("FollowMode(%d)", int(m))
	}
}

// allows checks candidate against the crawl root. The returned string names
// the rejection reason and is empty when the candidate is allowed.
func (m FollowMode) allows(root, candidate Entry) (bool, string) {
	switch m.resolve() {
	case FollowSameHost, FollowSameDomain:
		if !sameHost(root, candidate) {
			return false, "wrong domain/subdomain"
		}
	case FollowSubPath:
		if !strings.HasPrefix(candidate.Path(), root.Path()) {
			return false, "outside root path"
		}
	}
	return true, ""
}
