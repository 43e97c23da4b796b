// Package automations provides the Lua-based automation system for the CRM.
// It includes the runtime for executing automation scripts and defines the Go
// functions and types that are exposed to the Lua environment, allowing
// scripts to react to CRM events such as new leads, published listings,
// confirmed reservations, and paid commissions.
package automations
