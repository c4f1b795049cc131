package options

import "fmt"

// ErrorKind classifies configuration-time failures
type ErrorKind int

const (
	InvalidOption ErrorKind = iota + 1
	MissingArgument
	InvalidArgumentValue
	OptionDependencyUnmet
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidOption:
		return "InvalidOption"
	case MissingArgument:
		return "MissingArgument"
	case InvalidArgumentValue:
		return "InvalidArgumentValue"
	case OptionDependencyUnmet:
		return "OptionDependencyUnmet"
	default:
		return "Unknown"
	}
}

// Error is returned by the resolver on both invocation surfaces.
// Option is always the canonical registry name.
type Error struct {
	Kind      ErrorKind
	Option    string
	Token     string // the unrecognized token, InvalidOption only
	Companion string // the required option, OptionDependencyUnmet only
	Detail    string
	Format    bool // the value had the wrong shape rather than an unknown value
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidOption:
		return "unknown option: " + e.Token
	case MissingArgument:
		return "missing argument for -" + e.Option
	case OptionDependencyUnmet:
		return fmt.Sprintf("'-%s' requires '-%s' to be enabled", e.Option, e.Companion)
	default:
		word := "value"
		if e.Format {
			word = "format"
		}
		if e.Detail == "" {
			return fmt.Sprintf("incorrect argument %s for -%s", word, e.Option)
		}
		return fmt.Sprintf("incorrect argument %s for -%s (%s)", word, e.Option, e.Detail)
	}
}

func unknownOption(token string) *Error {
	return &Error{Kind: InvalidOption, Token: token}
}

func missingArgument(option string) *Error {
	return &Error{Kind: MissingArgument, Option: option}
}

func invalidValue(option, detail string) *Error {
	return &Error{Kind: InvalidArgumentValue, Option: option, Detail: detail}
}

func invalidFormat(option, detail string) *Error {
	return &Error{Kind: InvalidArgumentValue, Option: option, Detail: detail, Format: true}
}

func dependencyUnmet(option, companion string) *Error {
	return &Error{Kind: OptionDependencyUnmet, Option: option, Companion: companion}
}
