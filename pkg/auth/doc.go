// Package auth implements user identity, API key handling and scope
// derivation for the query service.
//
// # Authentication
//
// The only authenticator is the User-Token header:
//
//	User-Token: <uuidv4>:<api_key>
//
// An empty header yields the anonymous context (scope "anonymous"). A
// well-formed token is resolved against the user store; the stored api key is
// compared in constant time. Scopes are derived from roles: every
// authenticated user holds "authenticated", the "admin" role adds "admin",
// and every other role name becomes a scope of the same name.
//
// # Product Authorization
//
// Catalog products carry a role name. A caller may access a product when the
// product role is "public", when the caller holds the role as a scope, or
// when the caller is an admin.
package auth
