package enums

// ActorRole is the role carried in an access token.
type ActorRole string

const (
	// ActorRoleAdmin is a marketplace operator.
	ActorRoleAdmin ActorRole = "admin"
	// ActorRoleService is a trusted internal caller such as the Order Service.
	ActorRoleService ActorRole = "service"
)

var validActorRoles = set[ActorRole]{
	ActorRoleAdmin,
	ActorRoleService,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return validActorRoles.has(r)
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return validActorRoles.parse("actor role", value)
}
