// Package config loads service configuration from environment variables
// using kelseyhightower/envconfig.
//
// Terminal behaviour itself (shell, env, virtual environment detection) is
// not configured here; it lives in layered settings files handled by the
// settings package. This package only points at the global settings file and
// lists the project's worktrees.
package config
