// Package config loads ChainCart settings from an optional JSON file and the
// process environment. Credentials are expected to come from the environment
// (or a .env file loaded by the command) and are validated before the chat
// loop starts.
package config
