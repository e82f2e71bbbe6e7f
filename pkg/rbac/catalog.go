package rbac

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog maps roles to their default capability sets
type Catalog struct {
	mu       sync.RWMutex
	defaults map[Role]CapabilitySet
}

// NewCatalog creates a catalog populated with the built-in defaults
func NewCatalog() *Catalog {
	return &Catalog{defaults: BuiltInDefaults()}
}

// BuiltInDefaults returns the built-in role defaults.
//
// contractor and viewer share the same read-only set. Whether contractors
// should keep some self-scoped write capability is pending product
// clarification; deployments can override it via the catalog file.
func BuiltInDefaults() map[Role]CapabilitySet {
	viewer := NewCapabilitySet(CapViewContacts, CapViewJobs, CapViewActivities)

	employee := NewCapabilitySet(append(viewer,
		CapCreateContacts, CapEditContacts,
		CapCreateJobs, CapEditJobs,
		CapCreateActivities,
	)...)

	manager := NewCapabilitySet(append(employee,
		CapAssignJobs,
		CapManageDocuments,
		CapViewReports,
		CapInviteTeamMembers,
	)...)

	admin := NewCapabilitySet(append(manager,
		CapDeleteContacts, CapDeleteJobs,
		CapManageWebsite, CapManageProducts,
		CapManageTeam, CapManageSettings,
	)...)

	return map[Role]CapabilitySet{
		RoleOwner:      {Wildcard},
		RoleAdmin:      admin,
		RoleManager:    manager,
		RoleEmployee:   employee,
		RoleContractor: viewer,
		RoleViewer:     NewCapabilitySet(viewer...),
	}
}

// DefaultsFor returns the default capability set of a role
func (c *Catalog) DefaultsFor(role Role) (CapabilitySet, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	c.mu.RLock()
	caps := c.defaults[role]
	c.mu.RUnlock()

	if len(caps) == 0 {
		return nil, fmt.Errorf("%w: role %s", ErrEmptyCapabilitySet, role)
	}

	out := make(CapabilitySet, len(caps))
	copy(out, caps)
	return out, nil
}

// Resolve applies the membership defaulting rule. Owners always hold the
// wildcard; an empty request is filled from the role defaults; anything else
// is normalized and kept. Resolving an already resolved set returns it unchanged.
func (c *Catalog) Resolve(role Role, requested CapabilitySet) (CapabilitySet, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if role == RoleOwner {
		return CapabilitySet{Wildcard}, nil
	}

	caps := NewCapabilitySet(requested...)
	if len(caps) == 0 {
		return c.DefaultsFor(role)
	}
	return caps, nil
}

// Override replaces the default set of a non-owner role
func (c *Catalog) Override(role Role, caps CapabilitySet) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	caps = NewCapabilitySet(caps...)
	if len(caps) == 0 {
		return fmt.Errorf("%w: role %s", ErrEmptyCapabilitySet, role)
	}
	if role == RoleOwner && !caps.IsWildcard() {
		return fmt.Errorf("owner defaults must be the wildcard")
	}

	c.mu.Lock()
	c.defaults[role] = caps
	c.mu.Unlock()
	return nil
}

// catalogFile is the on-disk override format:
//
//	roles:
//	  contractor: [view_jobs, view_contacts, create_activities]
type catalogFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadCatalogFile creates a catalog from the built-in defaults plus the
// overrides found in a YAML file
func LoadCatalogFile(path string) (*Catalog, error) {
	c := NewCatalog()
	if err := c.ApplyFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyFile resets the catalog to the built-in defaults plus the overrides of
// a YAML file. The file is validated as a whole before anything is replaced.
func (c *Catalog) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	overrides := make(map[Role]CapabilitySet, len(file.Roles))
	for name, tokens := range file.Roles {
		role := Role(name)
		if !role.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, name)
		}
		caps := make(CapabilitySet, 0, len(tokens))
		for _, t := range tokens {
			caps = append(caps, Capability(t))
		}
		caps = NewCapabilitySet(caps...)
		if len(caps) == 0 {
			return fmt.Errorf("%w: role %s", ErrEmptyCapabilitySet, role)
		}
		if role == RoleOwner && !caps.IsWildcard() {
			return fmt.Errorf("owner defaults must be the wildcard")
		}
		overrides[role] = caps
	}

	next := BuiltInDefaults()
	for role, caps := range overrides {
		next[role] = caps
	}

	c.mu.Lock()
	c.defaults = next
	c.mu.Unlock()
	return nil
}
