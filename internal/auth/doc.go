// Package auth groups device authentication concerns. Device identity is
// established with signed tokens issued at provisioning time; see the
// devicetoken subpackage.
package auth
