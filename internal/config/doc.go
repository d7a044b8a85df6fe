// Package config resolves the bot's environment-scoped settings.
//
// The environment name is the single switch that selects the bot token, the
// database name and the default balance together. Resolution happens once at
// startup and fails fast with a configuration_error so a misconfigured process
// never touches the other environment's data.
package config
