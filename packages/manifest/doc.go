// Package manifest discovers tests declared in YAML files.
//
// A manifest names an assembly and lists its tests. Each test is a shell
// command run with sh -c; exit status 0 passes, anything else is an
// assertion failure. Output lines are streamed to the test as they are
// written, and a line starting with "::warning::" is recorded as a warning.
//
//	name: math
//	namespace: Acme
//	env:
//	  PAGER: cat
//	tests:
//	  - class: Acme.Math
//	    method: Adds
//	    run: test $((1 + 1)) -eq 2
//	    traits:
//	      category: unit
//	  - class: Acme.Math
//	    method: Squares
//	    run: test $((N * N)) -eq "$EXPECTED"
//	    timeout: 5s
//	    rows:
//	      - label: "2"
//	        values: {N: "2", EXPECTED: "4"}
//
// Theory rows are exported to the command's environment.
package manifest
