// Package jobs runs the background task queues over Redis. Scheduled tasks
// keep the CRM tidy (expiring stale reservations, sending visit reminders,
// purging old notifications and tokens, sweeping unassigned leads) while ad
// hoc tasks absorb slow work the request path should not wait on, such as
// geocoding a property address or fanning out a notification batch.
//
// When Redis is unreachable the server keeps running without background
// processing, so a missing queue never takes the CRM down with it.
package jobs
