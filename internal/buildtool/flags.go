package buildtool

import "fmt"

// FortranFlags returns the synthesized flag set for a Fortran compiler.
// Caller-provided flags from the build spec are appended after these.
func FortranFlags(fc string, double, debug bool) ([]string, error) {
	var flags []string
	switch fc {
	case "gfortran":
		flags = optimizationFlags(debug)
		flags = append(flags, "-fbacktrace")
		if double {
			flags = append(flags, "-fdefault-real-8", "-fdefault-double-8")
		}
	case "ifort":
		flags = optimizationFlags(debug)
		flags = append(flags, "-fpe0", "-traceback")
		if double {
			flags = append(flags, "-r8", "-autodouble")
		}
	default:
		return nil, fmt.Errorf("unsupported fortran compiler %q", fc)
	}
	return flags, nil
}

// CFlags returns the synthesized flag set for a C compiler.
func CFlags(cc string, debug bool) ([]string, error) {
	switch cc {
	case "gcc", "clang":
		return optimizationFlags(debug), nil
	default:
		return nil, fmt.Errorf("unsupported c compiler %q", cc)
	}
}

func optimizationFlags(debug bool) []string {
	if debug {
		return []string{"-g", "-O0"}
	}
	return []string{"-O2"}
}
