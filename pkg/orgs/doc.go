// Package orgs provides tenant onboarding, principal profiles and the
// invitation workflow.
//
// # Tenants
//
// Tenants.Create creates a tenant and makes its creator the owner in a single
// unit of work, so a tenant never exists without an active owner.
//
// # Invitations
//
// An invitation proposes a membership to a contact (email, phone or both):
//
//	inv, token, err := workflow.Create(ctx, orgs.CreateInvitationRequest{
//		TenantID:  tenantID,
//		InviterID: inviterID,
//		Role:      rbac.RoleManager,
//		Contact:   orgs.Contact{Email: "crew@example.com"},
//		TTL:       48 * time.Hour,
//	})
//
// The token is returned once and only its SHA-256 hash is stored. The invitee
// presents it to accept or decline. States:
//
//	pending -> accepted | declined | cancelled | expired
//
// Every state but pending is terminal. Accept and Decline re-check expiry on
// their own, so an invitation past its expiry is rejected with ErrExpired
// whether or not SweepExpired has run yet.
//
// SweepExpired runs from a cron schedule. A global sweep fans out per tenant
// with bounded concurrency.
//
// # Principals
//
// Principals.View applies the visibility rule: a principal always sees
// itself and sees others only through a shared active membership.
package orgs
