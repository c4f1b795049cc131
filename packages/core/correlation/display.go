package correlation

import (
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/options"
)

// DisplayFormatter rewrites test display names according to the resolved
// method-display and method-display-options settings
type DisplayFormatter struct {
	methodOnly bool

	periodWithComma     bool
	underscoreWithSpace bool
	operatorMonikers    bool
	escapeSequences     bool
}

var operatorMonikers = map[string]string{
	"eq": "=",
	"ne": "!=",
	"lt": "<",
	"le": "<=",
	"gt": ">",
	"ge": ">=",
}

// NewDisplayFormatter builds a formatter from the configuration
func NewDisplayFormatter(cfg *config.Config) DisplayFormatter {
	f := DisplayFormatter{methodOnly: cfg.GetMethodDisplay() == config.MethodDisplayMethod}
	for _, opt := range cfg.MethodDisplayOptions {
		switch opt {
		case options.DisplayAll:
			f.periodWithComma = true
			f.underscoreWithSpace = true
			f.operatorMonikers = true
			f.escapeSequences = true
		case options.DisplayReplacePeriodWithComma:
			f.periodWithComma = true
		case options.DisplayReplaceUnderscoreWithSpace:
			f.underscoreWithSpace = true
		case options.DisplayUseOperatorMonikers:
			f.operatorMonikers = true
		case options.DisplayUseEscapeSequences:
			f.escapeSequences = true
		}
	}
	return f
}

// Format rewrites name; arguments in parentheses are left untouched
func (f DisplayFormatter) Format(name string) string {
	if name == "" {
		return name
	}

	head, args := name, ""
	if i := strings.IndexByte(name, '('); i >= 0 {
		head, args = name[:i], name[i:]
	}

	if f.methodOnly {
		if i := strings.LastIndexByte(head, '.'); i >= 0 {
			head = head[i+1:]
		}
	}
	if f.escapeSequences {
		head = replaceEscapes(head)
	}
	if f.operatorMonikers {
		parts := strings.Split(head, "_")
		for i, p := range parts {
			if op, ok := operatorMonikers[p]; ok {
				parts[i] = op
			}
		}
		head = strings.Join(parts, "_")
	}
	if f.underscoreWithSpace {
		head = strings.ReplaceAll(head, "_", " ")
	}
	if f.periodWithComma {
		head = strings.ReplaceAll(head, ".", ", ")
	}

	return head + args
}

// replaceEscapes turns "X" + 2 hex digits and "U" + 4 hex digits into the character
func replaceEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == 'X' && i+3 <= len(s) && isHex(s[i+1:i+3]):
			v, _ := strconv.ParseUint(s[i+1:i+3], 16, 8)
			b.WriteRune(rune(v))
			i += 2
		case s[i] == 'U' && i+5 <= len(s) && isHex(s[i+1:i+5]):
			v, _ := strconv.ParseUint(s[i+1:i+5], 16, 16)
			b.WriteRune(rune(v))
			i += 4
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isHex(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
