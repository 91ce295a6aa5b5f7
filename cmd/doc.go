// Package cmd implements the command-line interface for depobot.
//
// This package provides the following commands:
//   - serve: Run the HTTP server for Zoom webhooks, OAuth install and the bot token callback
//   - format: Render a raw transcript JSON file as paginated Q/A text
//   - totp: Print the current one-time code for the deposition API
//   - version: Display version information
//
// Configuration is read from the environment, optionally seeded from a .env
// file outside production.
package cmd
