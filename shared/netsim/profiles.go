package netsim

import (
	"fmt"
	"strings"
	"time"
)

// Profile is a named, symmetric set of conditions.
type Profile struct {
	Name       string
	Conditions Conditions
}

// Profiles returns the stock profiles, worst first.
func Profiles() []Profile {
	return []Profile{
		{"very-poor", Conditions{Latency: 200 * time.Millisecond, Jitter: 20 * time.Millisecond, Loss: 0.10, Shuffle: true}},
		{"lossy", Conditions{Latency: 100 * time.Millisecond, Jitter: 10 * time.Millisecond, Loss: 0.05, Shuffle: true}},
		{"poor", Conditions{Latency: 200 * time.Millisecond}},
		{"average", Conditions{Latency: 100 * time.Millisecond}},
		{"good", Conditions{Latency: 50 * time.Millisecond}},
		{"ideal", Conditions{}},
	}
}

// LookupProfile finds a stock profile by name.
func LookupProfile(name string) (Profile, error) {
	for _, p := range Profiles() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("netsim: unknown profile %q", name)
}
