// Package repository defines the storage contracts shared by every
// backend together with the error values they return.  Higher layers
// such as services and handlers only see these interfaces and use the
// sentinel values to tell failure scenarios apart.  For example,
// ErrNotFound indicates that the addressed document does not exist,
// while ErrConflict signals that a conditional write lost against the
// stored state (e.g. cancelling a booking that is already cancelled).
package repository

import "errors"

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be applied because the
// stored state no longer matches what the caller expected, such as a
// duplicate showtime slot or a status transition that already happened.
// Handlers translate this into an HTTP 409 response unless the service
// maps it to something more specific.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by UserRepository.Create for a duplicate
// email address.
var ErrEmailExists = errors.New("email already registered")

// ErrScreenInUse is returned by MovieRepository.AddShowtime when the
// screen is already bound to a showtime or has booked seats.
var ErrScreenInUse = errors.New("screen already in use")
