// Package gateway provides the public API for embedding the tutoring gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/classroom-llm-gateway/internal/runtime"
)

// Gateway is the main entry point for running the tutoring gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithConfigFile("config.yaml"),
//	    gateway.WithLogger(logger),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Storage
	WithSQLite = runtime.WithSQLite
	WithStore  = runtime.WithStore

	// Providers
	WithHTTPClient      = runtime.WithHTTPClient
	WithProviderFactory = runtime.WithProviderFactory

	// Advanced options
	WithLogger = runtime.WithLogger
)
