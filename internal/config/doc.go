// Package config loads the cozictl client configuration from an optional
// YAML file and COZI_* environment variables.
//
// Example file:
//
//	base_url: https://rest.cozi.com/
//	timeout: 30s
//	retry:
//	  max_retries: 3
//	  base_delay: 2s
//	item_versions: ["2004", "2207"]
//	attendee_concurrency: 4
//
// Credentials are never read from the file.
package config
