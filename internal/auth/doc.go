// Package auth implements the client-side access guard: a three-state
// authentication gate (unknown, unauthorized, authorized) that decides
// whether protected functionality is reachable. Verification is
// fail-closed: any error or non-success response clears the local token
// and lands in the unauthorized state.
package auth
