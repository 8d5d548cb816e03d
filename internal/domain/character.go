// Package domain contains core domain types for the StatefulTalk application.
package domain

import "strings"

// AgentNamePrefix prefixes the remote agent name bound to a character.
const AgentNamePrefix = "character_"

// Character is a static persona users can chat with.
type Character struct {
	Handle           string `json:"handle" yaml:"handle"`
	Name             string `json:"name" yaml:"name"`
	ShortDescription string `json:"shortDescription" yaml:"shortDescription"`
	Bio              string `json:"bio" yaml:"bio"`
	ProfilePicture   string `json:"profilePicture,omitempty" yaml:"profilePicture,omitempty"`
}

// AgentName returns the deterministic remote agent name for this character.
// At most one agent per (credential, handle) exists because both lookup and
// creation use this name.
func (c Character) AgentName() string {
	return AgentNameForHandle(c.Handle)
}

// AgentNameForHandle returns the remote agent name for a character handle.
func AgentNameForHandle(handle string) string {
	return AgentNamePrefix + handle
}

// Initials returns up to n leading runes of the name, used as an avatar fallback.
func (c Character) Initials(n int) string {
	r := []rune(strings.TrimSpace(c.Name))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
