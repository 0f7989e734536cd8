// Package token issues ephemeral signed bearer tokens for testing clients
// against a simulated identity provider.
//
// Tokens are signed with a symmetric key generated fresh for each process
// run, so they are deliberately not verifiable across restarts: the issuer
// simulates an identity provider, it is not one.
package token
