// Package loader registers store drivers via blank imports.
// Import this package to ensure the default store drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/ideaforge/ideaforge-go/internal/store/loader"
package loader

import (
	// Register the memory store driver
	_ "github.com/ideaforge/ideaforge-go/internal/store/memory"

	// Register the sqlite store driver
	_ "github.com/ideaforge/ideaforge-go/internal/store/sqlite"
)
