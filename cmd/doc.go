// Package cmd provides the roaster command-line interface.
//
// Configuration System:
//
//	Settings are resolved with the following precedence:
//	1. Command-line flags (--mode, --port, etc.) - highest priority
//	2. Individual environment variables (ROASTER_SERVER_PORT, etc.)
//	3. Configuration file: --config, then ROASTER_CONFIG_FILE, then .roaster.yml
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	ROASTER_CONFIG_FILE: Path to custom configuration file
//	ROASTER_MODE: dev or prod
//	ROASTER_COFFEE_NATIVE: Path of the coffee executable
//	ROASTER_UGLIFYJS_PATH: Path of the uglifyjs executable
//	And every other key following the ROASTER_<SECTION>_<OPTION> pattern
//
// # Available Commands
//
//   - serve: Serve assets, compiling .coffee requests on demand
//   - precompile: Compile every source into precompiled/ with a manifest
//   - clean: Remove compiled artifacts
//   - compile: Print the JavaScript of one source
//   - init: Write .roaster.yml and the asset directory
//   - version: Show build information
//
// # Command Examples
//
//	// Development server with live reload
//	roaster serve --port 3000
//
//	// Production: precompile once, then serve without compiling
//	roaster precompile --mode prod --strict
//	roaster serve --mode prod --precompiled
//
//	// Check one file
//	roaster compile public/javascripts/application.coffee
package cmd
