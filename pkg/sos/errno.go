// Package sos holds the error vocabulary shared by every sos package.
//
// The core never panics on a caller-facing error path; it returns one of
// the sentinels below, matching the error kinds the original ODS/SOS C
// library surfaces as errno values.
package sos

// Errno is a sentinel error comparable with errors.Is.
type Errno string

func (e Errno) Error() string { return string(e) }

const (
	// EBUSY: the schema is already persisted and cannot be mutated.
	EBUSY Errno = "sos: already bound to a container"
	// EEXIST: a schema or attribute name already exists.
	EEXIST Errno = "sos: name already exists"
	// ENOENT: schema/attribute not found.
	ENOENT Errno = "sos: not found"
	// EINVAL: bad type tag, nil where disallowed, non-array where an
	// array was expected, or a reference attribute bound without an
	// object.
	EINVAL Errno = "sos: invalid argument"
	// ENOMEM: allocation failed after one grow-and-retry.
	ENOMEM Errno = "sos: out of space"
	// ENOSYS: not implemented.
	ENOSYS Errno = "sos: not implemented"
)
