package core

import (
	"fmt"
	"net/http"
	"strings"
)

// BodyPolicy decides how a request body reaches the route handler.
type BodyPolicy int

const (
	// PolicyNone calls the handler once with (req, res) without reading the body.
	PolicyNone BodyPolicy = iota
	// PolicyStreamed calls the handler per chunk with (req, res, chunk, is_last).
	PolicyStreamed
	// PolicyAccumulated buffers the body and calls the handler once with (req, res, body).
	PolicyAccumulated
)

func (p BodyPolicy) String() string {
	switch p {
	case PolicyStreamed:
		return "streamed"
	case PolicyAccumulated:
		return "accumulated"
	default:
		return "none"
	}
}

// DefaultPolicy is the body policy a verb gets when none is given.
func DefaultPolicy(method string) BodyPolicy {
	switch method {
	case http.MethodPost:
		return PolicyStreamed
	case http.MethodPut, http.MethodPatch:
		return PolicyAccumulated
	default:
		return PolicyNone
	}
}

func ParseBodyPolicy(s string) (BodyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return PolicyNone, nil
	case "streamed", "stream":
		return PolicyStreamed, nil
	case "accumulated", "buffered":
		return PolicyAccumulated, nil
	}
	return PolicyNone, fmt.Errorf("unknown body policy %q", s)
}
