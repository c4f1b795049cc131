// Package cmd implements the testhost CLI commands using Cobra.
//
// Available commands:
//   - run: Run the tests declared in manifests
//   - list: List the tests a run would execute
//   - validate: Check manifests and config files without running them
//   - options: Print the run options, or check the value of one
//   - host: Serve a test platform session from a request document
//   - history: Show runs recorded in a history database
//   - version: Show testhost version information
//
// run and list take xUnit style single dash options, which are resolved by
// the option registry rather than by Cobra flags.
package cmd
