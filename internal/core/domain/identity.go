package domain

// AuthProvider names the mechanism an identity authenticated with.
type AuthProvider string

const (
	// AuthProviderLocal is the platform's own username/password login.
	// Local identities are trusted and never metered.
	AuthProviderLocal     AuthProvider = "local"
	AuthProviderLTI       AuthProvider = "lti"
	AuthProviderDemo      AuthProvider = "demo"
	AuthProviderGoogle    AuthProvider = "google"
	AuthProviderGitHub    AuthProvider = "github"
	AuthProviderMicrosoft AuthProvider = "microsoft"
)

// Role is an identity's role inside a tenant.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Identity is an account as held by the identity store.
type Identity struct {
	ID           int64        `db:"id" json:"id"`
	DisplayName  string       `db:"display_name" json:"display_name"`
	AuthProvider AuthProvider `db:"auth_provider" json:"auth_provider"`
	IsAdmin      bool         `db:"is_admin" json:"is_admin"`
	IsTester     bool         `db:"is_tester" json:"is_tester"`
}

// Membership is an identity's active role in one tenant.
type Membership struct {
	ID            int64  `db:"id" json:"id"`
	TenantID      int64  `db:"tenant_id" json:"tenant_id"`
	TenantName    string `db:"tenant_name" json:"tenant_name"`
	TenantEnabled bool   `db:"tenant_enabled" json:"tenant_enabled"`
	Role          Role   `db:"role" json:"role"`
}

// Tenant is a class: an isolated group scope with its own enablement flag.
type Tenant struct {
	ID       int64    `db:"id" json:"id"`
	Name     string   `db:"name" json:"name"`
	Enabled  bool     `db:"enabled" json:"enabled"`
	Features []string `db:"-" json:"features,omitempty"`
}

// TenantRef is a compact reference to a tenant the identity can switch to.
type TenantRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CredentialSource records where a credential came from.
type CredentialSource string

const (
	SourcePlatform CredentialSource = "platform"
	SourceLTI      CredentialSource = "lti"
	SourceTenant   CredentialSource = "tenant"
)

// Credential is a model-provider key bound to a model name.
type Credential struct {
	Provider string           `db:"provider" json:"provider"`
	APIKey   string           `db:"api_key" json:"-"`
	BaseURL  string           `db:"-" json:"-"`
	Model    string           `db:"model" json:"model"`
	Source   CredentialSource `db:"source" json:"source"`
}

// HasKey reports whether the credential carries a usable key.
func (c *Credential) HasKey() bool {
	return c != nil && c.APIKey != ""
}

// AuthContext is the authoritative per-request view of who is calling and in
// which tenant. It is rebuilt from the session token and the identity store on
// every request and never persisted.
//
// Zero IdentityID means anonymous; zero TenantID means no active tenant.
// Role and TenantName are set iff TenantID is set.
type AuthContext struct {
	IdentityID     int64        `json:"identity_id,omitempty"`
	DisplayName    string       `json:"display_name,omitempty"`
	AuthProvider   AuthProvider `json:"auth_provider,omitempty"`
	IsAdmin        bool         `json:"is_admin"`
	IsTester       bool         `json:"is_tester"`
	TenantID       int64        `json:"tenant_id,omitempty"`
	TenantName     string       `json:"tenant_name,omitempty"`
	Role           Role         `json:"role,omitempty"`
	MembershipID   int64        `json:"membership_id,omitempty"`
	TenantFeatures []string     `json:"tenant_features,omitempty"`
	OtherTenants   []TenantRef  `json:"other_tenants,omitempty"`
}

// Anonymous returns the logged-out context.
func Anonymous() *AuthContext {
	return &AuthContext{}
}

// IsAuthenticated reports whether the context has an identity.
func (a *AuthContext) IsAuthenticated() bool {
	return a != nil && a.IdentityID != 0
}

// HasTenant reports whether the context has an active tenant.
func (a *AuthContext) HasTenant() bool {
	return a != nil && a.TenantID != 0
}

// IsInstructor reports whether the caller is an instructor of the active tenant.
func (a *AuthContext) IsInstructor() bool {
	return a.HasTenant() && a.Role == RoleInstructor
}
