// Package config provides the configuration of the inspector daemon.
//
// Configuration is resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. INSPECTOR_* variables   │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. .env file               │
//	├─────────────────────────────┤
//	│  2. Config file             │  ← .toml, .yaml or .yml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A variable set in the process environment always wins over the same
// variable in the .env file.
//
// # Live reload
//
// Watch follows the config file with fsnotify and hands every successful
// reload to a callback. The daemon uses it to change the log level without
// a restart.
package config
