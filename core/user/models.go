package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// Roles
const (
	RoleAdmin = "admin:"

	// Faculty
	RoleInstructor = "faculty:instructor"
	RolePanelist   = "faculty:panelist"
	RoleAdviser    = "faculty:adviser"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin}
	FacultyRoles = []string{RoleInstructor, RolePanelist, RoleAdviser}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Adviser", Value: RoleAdviser},
		{Name: "Panelist", Value: RolePanelist},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, FacultyRoles...)
	all = append(all, StudentRoles...)
	return all
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     *bool     `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool      { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsInstructor() bool { return u.HasRole(RoleInstructor) }
func (u *User) IsPanelist() bool   { return u.HasRole(RolePanelist) }
func (u *User) IsAdviser() bool    { return u.HasRole(RoleAdviser) }
func (u *User) IsStudent() bool    { return u.RoleStartsWith(RoleStudent) }

// NewUser is the expected payload to create a new User.
type NewUser struct {
	Name     string   `json:"name" validate:"required"`
	Username string   `json:"username" validate:"required,alphanum_"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	Roles    []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Clean() {
	nu.Name = strings.TrimSpace(nu.Name)
	nu.Username = strings.ToLower(strings.TrimSpace(nu.Username))
	nu.Email = strings.ToLower(strings.TrimSpace(nu.Email))
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return validatePassword(nu.Password, User{Name: nu.Name, Username: nu.Username, Email: nu.Email})
}
