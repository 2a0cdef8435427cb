// Package auth provides invitation gated registration and JWT issuance on
// top of bun repositories, with fiber HTTP handlers.
//
// Accounts:
//   - Users are created either through open registration (confirmed at once)
//     or through an invitation. Invited users get a six digit confirmation
//     pin that is redeemed once through ConfirmPinHandler.
//   - Email and pin uniqueness are enforced by the store. Handlers pre-check
//     for friendly errors, the unique indexes decide races.
//
// Invitations:
//   - CreateInviteHandler records an invitation and notifies the invited
//     address after the transaction commits. A failed notification leaves the
//     invitation valid and is reported on InviteResult.
//   - InvitedSignupHandler creates the user and consumes the code in one
//     transaction. A code is consumed at most once.
//
// Tokens:
//   - TokenService signs HS256 access tokens with a key id header. Previous
//     keys keep verifying during rotation. Logout and refresh revoke through
//     an optional Revoker backed by redis.
//
// Activity sinks:
//   - ActivitySink receives an ActivityEvent after each committed operation.
//     Sinks run best effort (errors are logged).
package auth
