// Package configx provides the runtime configuration of the o11y kit.
//
// # Overview
//
// configx merges defaults, an optional YAML file and O11Y_* environment
// variables (in that order, later wins) into a validated Config. A Store
// serves the active Config to interceptors and providers, and a Watcher
// swaps it when the file changes.
//
// # Features
//
//   - Type-safe struct binding via env/default tags
//   - YAML file decoding with gopkg.in/yaml.v3
//   - Validation with go-playground/validator
//   - Hierarchical sample-rate lookup (method, then class, then base rate)
//   - Debounced hot reload with fsnotify
//
// # Usage
//
//	cfg, err := configx.Load(configx.LoadOptions{File: configx.FileFromEnv()})
//	if err != nil { return err }
//	store := configx.NewStore(cfg)
//
//	w, err := configx.NewWatcher(store, configx.WatchOptions{
//		Load:   configx.LoadOptions{File: path},
//		Logger: logger,
//	})
//	go w.Run(ctx)
package configx
