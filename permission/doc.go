// Package permission resolves role-based permissions for authenticated
// principals.
//
// Roles are owned by the persistence collaborator and consumed through
// the [Role] interface. The [Evaluator] applies OR semantics: a request
// for "edit,publish" succeeds when any assigned role grants any of the
// requested names. The reserved superuser id bypasses evaluation
// unconditionally and is isolated behind [Evaluator.IsSuperuser].
package permission
