// Package config loads the depobot process configuration from the environment.
//
// Configuration is read once at startup into an immutable Config value that
// is injected into every component; nothing below cmd reads the environment.
// Outside production a .env file is loaded first (see LoadDotEnv).
//
// Required everywhere: ZM_CLIENT_ID, ZM_CLIENT_SECRET, ZM_REDIRECT_URL and
// SESSION_SECRET. The serve command additionally requires the Recall, AWS and
// deposition API groups (see ValidatePipeline).
package config
