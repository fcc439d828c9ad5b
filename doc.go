// Package docsync keeps a set of destinations up to date
// with the documents found under a set of source roots.
//
// Every file is identified by its content fingerprint,
// the sha2-256 hash of its bytes,
// and not by its name or modification time.
// A file is copied to a destination only when the destination has no file at the corresponding path,
// or has one whose fingerprint differs.
//
// Source roots are directories on the local machine:
// a desktop folder,
// any removable volumes that happen to be mounted,
// and folders named explicitly by the operator.
// A file found beneath a root lands at
//
//	<sanitized root name>/<path beneath the root>
//
// on every destination,
// so two roots with identically named files never collide.
//
// Destinations are Backends.
// This module provides a local-directory backend (package backend/local)
// and one reached over SSH and SFTP (package backend/remote).
// Both satisfy the same four-operation contract:
// Exists, Fingerprint, MaterializeParents, and Receive.
//
// Package dsync drives the whole thing in a scan-diff-transfer loop,
// and cmd/docsync is the command-line entry point.
package docsync
