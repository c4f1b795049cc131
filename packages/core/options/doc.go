// Package options is the option registry and resolver shared by every
// invocation surface.
//
// The console surface hands over raw tokens (Resolve); a host platform hands
// over options already split into name and arguments (ResolveStructured).
// Both run the same Descriptor.Apply functions and fail with the same *Error,
// whose message always uses the canonical option name:
//
//	unknown option: -foo
//	missing argument for -max-threads
//	incorrect argument value for -parallel (must be one of: 'none', 'collections')
//	incorrect argument format for -filter-trait (should be "name=value")
//	'-report-junit-filename' requires '-report-junit' to be enabled
package options
