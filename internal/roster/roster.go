// Package roster holds the static list of users that can select a profile.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Role controls which operations a user may perform.
type Role string

const (
	// RoleAdmin may manage meetings and assignments.
	RoleAdmin Role = "admin"
	// RoleUser may confirm its own assignments and join chats it is assigned to.
	RoleUser Role = "user"
)

// User is a roster entry. Name is unique and acts as the identity.
type User struct {
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	IsEncargado bool   `json:"isEncargado"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ErrUnknownUser is returned when a name is not part of the roster.
var ErrUnknownUser = errors.New("roster: unknown user")

// Roster is an immutable, ordered set of users.
type Roster struct {
	users  []User
	byName map[string]User
}

// New validates users and builds a roster preserving the given order.
func New(users []User) (*Roster, error) {
	r := &Roster{
		users:  make([]User, 0, len(users)),
		byName: make(map[string]User, len(users)),
	}
	for _, u := range users {
		u.Name = strings.TrimSpace(u.Name)
		if u.Name == "" {
			return nil, fmt.Errorf("roster: empty user name")
		}
		// "|" separates name and status in stored assignments
		if strings.Contains(u.Name, "|") {
			return nil, fmt.Errorf("roster: user name %q contains \"|\"", u.Name)
		}
		if u.Role == "" {
			u.Role = RoleUser
		}
		if u.Role != RoleAdmin && u.Role != RoleUser {
			return nil, fmt.Errorf("roster: user %s has invalid role %q", u.Name, u.Role)
		}
		if _, dup := r.byName[u.Name]; dup {
			return nil, fmt.Errorf("roster: duplicate user %s", u.Name)
		}
		r.byName[u.Name] = u
		r.users = append(r.users, u)
	}
	return r, nil
}

// Default returns the built-in roster.
func Default() *Roster {
	r, err := New(defaultUsers)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadFile reads a JSON array of users from path.
func LoadFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}
	return New(users)
}

// Lookup returns the user registered under name.
func (r *Roster) Lookup(name string) (User, error) {
	if r == nil {
		return User{}, ErrUnknownUser
	}
	u, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

// Contains reports whether name is part of the roster.
func (r *Roster) Contains(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Users returns a copy of the roster in configuration order.
func (r *Roster) Users() []User {
	if r == nil {
		return nil
	}
	out := make([]User, len(r.users))
	copy(out, r.users)
	return out
}

var defaultUsers = []User{
	{Name: "Dan", Role: RoleAdmin, IsEncargado: true},
	{Name: "Ángel", Role: RoleAdmin, IsEncargado: true},
	{Name: "Emiliano", Role: RoleUser, IsEncargado: true},
	{Name: "Gabriel", Role: RoleUser, IsEncargado: true},
	{Name: "Dionisio", Role: RoleUser},
	{Name: "Ruben", Role: RoleUser},
	{Name: "Ricardo", Role: RoleUser},
	{Name: "Jonathan", Role: RoleUser},
	{Name: "Jorge", Role: RoleUser},
	{Name: "Pablo", Role: RoleUser},
	{Name: "Nestor", Role: RoleUser},
	{Name: "Thiago", Role: RoleUser},
}
