// Package rbac implements role-based access control over flat-file
// JSON documents: a rules document mapping levels to permitted actions,
// a principal registry, and an approval request log. All writes are
// atomic replace-on-rename and serialized through a single writer.
package rbac
