// Package bot wires inbound chat updates to command handlers: a
// registry maps slash commands to the action slugs that gate them, a
// dispatcher resolves identity and enforces permissions, and an
// approval workflow handles onboarding of newcomers.
package bot
