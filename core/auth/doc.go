// Package auth holds the broker-side access policy: the Authenticator checks
// CONNECT credentials against the admin pair or a per-device secret, and the
// Authorizator decides topic access on every publish and subscribe.
//
// Both are pure functions of their inputs plus the SecretProvider lookup, so
// they are safe to call from the broker's connection goroutines.
package auth
