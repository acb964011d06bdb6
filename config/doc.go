// Package config loads the workspace configuration and input lists.
//
// Configuration is read in priority order:
//  1. Defaults
//  2. Workspace config file (<workspace>/.agentpack/config.toml)
//  3. Environment variables (AGENTPACK_*)
//
// CLI flags are applied on top by the caller.
package config
