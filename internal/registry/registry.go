// Package registry is the directory of registered people and the capture
// flow that enrolls them. It is not a biometric index: there is no search.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classwatch/internal/apperr"
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// Person is immutable once registered.
type Person struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	StudentID    string    `json:"student_id,omitempty"`
	Department   string    `json:"department"`
	ImageData    string    `json:"image_data,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Form is the registration form. StudentID is accepted as typed, even for
// instructors or when empty.
type Form struct {
	Name       string `json:"name" validate:"required"`
	Role       Role   `json:"role" validate:"omitempty,oneof=student instructor"`
	StudentID  string `json:"student_id"`
	Department string `json:"department" validate:"required"`
}

func (f Form) normalize() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Department = strings.TrimSpace(f.Department)
	f.StudentID = strings.TrimSpace(f.StudentID)
	f.Role = Role(strings.ToLower(strings.TrimSpace(string(f.Role))))
	if f.Role == "" {
		f.Role = RoleStudent
	}
	return f
}

// Validate reports apperr.ErrValidationFailed for a missing name or
// department or an unknown role.
func (f Form) Validate() error {
	return apperr.Validate(f.normalize())
}

// Registry holds people in registration order.
type Registry struct {
	mu     sync.RWMutex
	people []Person
	now    func() time.Time
}

func New() *Registry {
	return &Registry{now: time.Now}
}

// Add validates f and appends a person with the given photo. On error the
// registry is unchanged.
func (r *Registry) Add(f Form, imageData string) (Person, error) {
	f = f.normalize()
	if err := apperr.Validate(f); err != nil {
		return Person{}, fmt.Errorf("register person: %w", err)
	}
	p := Person{
		ID:           uuid.NewString(),
		Name:         f.Name,
		Role:         f.Role,
		StudentID:    f.StudentID,
		Department:   f.Department,
		ImageData:    imageData,
		RegisteredAt: r.now().UTC().Truncate(time.Millisecond),
	}
	r.mu.Lock()
	r.people = append(r.people, p)
	r.mu.Unlock()
	return p, nil
}

// Remove deletes id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.people {
		if p.ID == id {
			r.people = append(r.people[:i:i], r.people[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy in registration order.
func (r *Registry) List() []Person {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Person, len(r.people))
	copy(out, r.people)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.people)
}
