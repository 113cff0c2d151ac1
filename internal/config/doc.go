// Package config loads varpager settings.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (cmd/varpager)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← VARPAGER_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← varpager.toml or varpager.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # Configuration Files
//
// The format is picked from the file extension:
//
//	# varpager.toml
//	[inspect]
//	linked = 100
//	scripted = 20
//	max_depth = 3
//	scripts = ["queue.lua"]
//
//	[debug]
//	adapter = "delve"
//	program = "./cmd/server"
//	request_timeout = "10s"
//
//	[log]
//	level = "debug"
//
// # Live Reload
//
// Watcher reloads the file when it changes and hands the new Config to
// registered handlers. Page sizes apply to views created after the reload;
// existing pages keep the size they were created with.
package config
