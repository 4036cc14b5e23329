// Package domain contains core concepts of the chat system.
// This file defines the local projection of identity-provider users.
// The identity provider owns the user lifecycle; we only cache
// what is needed for display and membership checks.
package domain

type User struct {
	ID       string
	Username string
	Email    string
	Enabled  bool
}
