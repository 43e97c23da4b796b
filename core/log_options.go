// Package core provides fundamental utilities shared across the DIGIT-HAB backend.
// This file contains option functions for customizing activity log entries.
package core

import (
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.Context = context
		return nil
	}
}

// LogWithActor is an option to associate a log entry with the user who
// triggered the event.
func LogWithActor(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.ActorID = &id
		return nil
	}
}

// LogWithEntity is an option to associate a log entry with a CRM entity.
func LogWithEntity(kind string, id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.EntityKind = kind
		log.EntityID = &id
		return nil
	}
}

// LogWithScriptID is an option to associate a log entry with an automation script.
func LogWithScriptID(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.ScriptID = &id
		return nil
	}
}
