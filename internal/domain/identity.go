package domain

// Role enumerates the kinds of authenticated actors.
type Role string

const (
	RoleRequester  Role = "requester"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

// IsStaff reports whether the role may work tickets.
func (r Role) IsStaff() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// Person is the embedded reference to a user stored on tickets and history.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
	Role  Role   `json:"role,omitempty"`
}

// IsZero reports whether the reference is empty.
func (p Person) IsZero() bool {
	return p.ID == ""
}

// Identity is the already-authenticated caller supplied by the session layer.
type Identity = Person

// SystemActor authors time-driven transitions such as auto-close.
var SystemActor = Person{ID: "system", Name: "System", Login: "system", Role: RoleSystem}

// StaffMember models a technician or administrator eligible for assignment.
type StaffMember struct {
	Person
	Blocked bool
}

// Eligible reports whether the staff member can receive tickets.
func (s StaffMember) Eligible() bool {
	return s.Role.IsStaff() && !s.Blocked
}
