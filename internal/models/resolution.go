package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedResolution is returned when a resolution policy cannot be parsed
// or matches nothing the manifest offers.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// PolicyKind selects how the target resolution is picked from the manifest.
type PolicyKind int

const (
	PolicyLowest PolicyKind = iota
	PolicyHighest
	PolicyFixed
)

// ResolutionPolicy caps the ladder to representations not larger than the target resolution.
type ResolutionPolicy struct {
	Kind  PolicyKind
	Fixed Resolution
}

// ParseResolutionPolicy accepts "lowest", "highest" or "WIDTHxHEIGHT". The empty string means highest.
func ParseResolutionPolicy(s string) (ResolutionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "highest":
		return ResolutionPolicy{Kind: PolicyHighest}, nil
	case "lowest":
		return ResolutionPolicy{Kind: PolicyLowest}, nil
	}

	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return ResolutionPolicy{}, fmt.Errorf("%w: %q", ErrUnsupportedResolution, s)
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return ResolutionPolicy{}, fmt.Errorf("%w: %q", ErrUnsupportedResolution, s)
	}
	return ResolutionPolicy{Kind: PolicyFixed, Fixed: Resolution{Width: width, Height: height}}, nil
}

func (p ResolutionPolicy) String() string {
	switch p.Kind {
	case PolicyLowest:
		return "lowest"
	case PolicyFixed:
		return p.Fixed.String()
	default:
		return "highest"
	}
}

// Select picks the target resolution among the offered ones.
func (p ResolutionPolicy) Select(offered []Resolution) (Resolution, error) {
	if len(offered) == 0 {
		return Resolution{}, fmt.Errorf("%w: manifest offers no resolution", ErrUnsupportedResolution)
	}
	best := offered[0]
	switch p.Kind {
	case PolicyLowest:
		for _, r := range offered[1:] {
			if r.Pixels() < best.Pixels() {
				best = r
			}
		}
	case PolicyHighest:
		for _, r := range offered[1:] {
			if r.Pixels() > best.Pixels() {
				best = r
			}
		}
	case PolicyFixed:
		for _, r := range offered {
			if r == p.Fixed {
				return r, nil
			}
		}
		return Resolution{}, fmt.Errorf("%w: %s not offered", ErrUnsupportedResolution, p.Fixed)
	}
	return best, nil
}

// CapLadder returns the representations that fit limit, preserving order.
func CapLadder(ladder []Representation, limit Resolution) []Representation {
	out := make([]Representation, 0, len(ladder))
	for _, r := range ladder {
		if r.Resolution().Fits(limit) {
			out = append(out, r)
		}
	}
	return out
}
