package options

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
)

const (
	maxThreadsDetail = "must be 'default', 'unlimited', a positive number, or a multiplier in the form of '0.0x'"
	traitDetail      = `should be "name=value"`
	seedDetail       = "must be an integer in the range of 0 - 2147483647"
	positiveDetail   = "must be a positive integer"
	filenameDetail   = "report file name may not contain a path (use -results-directory to set the report output path)"
)

var multiplierPattern = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)x$`)

func oneOfDetail(symbols []string) string {
	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = "'" + s + "'"
	}
	return "must be one of: " + strings.Join(quoted, ", ")
}

func parseOnOff(option, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, invalidValue(option, oneOfDetail([]string{"on", "off"}))
	}
}

// parseEnum returns the symbol in its declared casing
func parseEnum(option, value string, symbols ...string) (string, error) {
	for _, s := range symbols {
		if strings.EqualFold(s, value) {
			return s, nil
		}
	}
	return "", invalidValue(option, oneOfDetail(symbols))
}

// parseMaxThreads returns 0 for the default budget and config.UnlimitedThreads
// for no limit.
func parseMaxThreads(option, value string, cpus int) (int, error) {
	v := strings.ToLower(value)
	switch v {
	case "default", "0":
		return 0, nil
	case "unlimited", "-1":
		return config.UnlimitedThreads, nil
	}

	if m := multiplierPattern.FindStringSubmatch(v); m != nil {
		multiplier, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil || multiplier <= 0 {
			return 0, invalidValue(option, maxThreadsDetail)
		}
		threads := int(math.Round(multiplier * float64(cpus)))
		if threads < 1 {
			threads = 1
		}
		return threads, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, invalidValue(option, maxThreadsDetail)
	}
	return n, nil
}

func parseTrait(option, value string) (string, string, error) {
	parts := strings.Split(value, "=")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", invalidFormat(option, traitDetail)
	}
	return parts[0], parts[1], nil
}

func parseSeed(option, value string) (int, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 || n > config.MaxSeed {
		return 0, invalidValue(option, seedDetail)
	}
	return int(n), nil
}

func parsePositive(option, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, invalidValue(option, positiveDetail)
	}
	return n, nil
}

// parseCulture returns nil for the default culture and "" for invariant
func parseCulture(option, value string) (*string, error) {
	switch strings.ToLower(value) {
	case "default":
		return nil, nil
	case "invariant":
		return config.StringPtr(""), nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return nil, invalidValue(option, fmt.Sprintf("unknown culture '%s'", value))
	}
	return config.StringPtr(tag.String()), nil
}

// Method display options
const (
	DisplayNone                       = "none"
	DisplayAll                        = "all"
	DisplayReplacePeriodWithComma     = "replacePeriodWithComma"
	DisplayReplaceUnderscoreWithSpace = "replaceUnderscoreWithSpace"
	DisplayUseOperatorMonikers        = "useOperatorMonikers"
	DisplayUseEscapeSequences         = "useEscapeSequences"
)

var displayOptionSymbols = []string{
	DisplayNone,
	DisplayAll,
	DisplayReplacePeriodWithComma,
	DisplayReplaceUnderscoreWithSpace,
	DisplayUseOperatorMonikers,
	DisplayUseEscapeSequences,
}

func parseDisplayOptions(option string, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, err := parseEnum(option, v, displayOptionSymbols...)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) > 1 {
		for _, s := range out {
			if s == DisplayAll || s == DisplayNone {
				return nil, invalidValue(option, fmt.Sprintf("cannot specify '%s' with any other values", s))
			}
		}
	}
	return out, nil
}

// validateReportFilename rejects names that carry a directory
func validateReportFilename(option, value string) error {
	if value == "" || strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return invalidValue(option, filenameDetail)
	}
	return nil
}
