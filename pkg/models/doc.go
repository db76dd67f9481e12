// Package models holds the job entity, its state machine and the other
// records shared across the Harmony job service.
package models
