// Package config resolves calendar-mcp settings from flags, environment
// variables and an optional .env file using viper.
//
// Precedence, highest first: explicitly set flags, environment variables,
// the .env file, defaults.
//
// CLIENT_ID and CLIENT_SECRET may also be given as GOOGLE_CLIENT_ID and
// GOOGLE_CLIENT_SECRET. MODE=stdio|http selects the transport when
// --transport is not set.
package config
