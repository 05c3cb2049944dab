package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Mode is the transport selected for one process invocation.
type Mode string

const (
	ModeHTTP  Mode = "http"
	ModeStdio Mode = "stdio"
)

// Flag names.
const (
	flagSkipValidation = "skip-api-key-validation"
	flagHost           = "host"
	flagPort           = "port"
	flagConfig         = "config"
	flagLogLevel       = "log-level"
)

// modeOptions lists the options that only make sense in one mode.
var modeOptions = map[Mode][]string{
	ModeHTTP:  {flagHost, flagPort},
	ModeStdio: {},
}

// commonOptions are legal in every mode.
var commonOptions = []string{flagSkipValidation, flagConfig, flagLogLevel}

// UsageError reports options that do not apply to the selected mode.
type UsageError struct {
	Mode    Mode
	Invalid []string
}

func (e *UsageError) Error() string {
	opts := make([]string, len(e.Invalid))
	for i, o := range e.Invalid {
		opts[i] = "--" + o
	}
	return fmt.Sprintf("The following option(s) are not applicable in '%s' mode: %s", e.Mode, strings.Join(opts, ", "))
}

// ValidateModeOptions checks that every explicitly provided option is
// allowed in mode. Options left at their defaults must not be passed in.
func ValidateModeOptions(mode Mode, explicit []string) error {
	allowed := make(map[string]bool, len(commonOptions)+len(modeOptions[mode]))
	for _, o := range commonOptions {
		allowed[o] = true
	}
	for _, o := range modeOptions[mode] {
		allowed[o] = true
	}

	seen := make(map[string]bool)
	var invalid []string
	for _, o := range explicit {
		if allowed[o] || seen[o] {
			continue
		}
		seen[o] = true
		invalid = append(invalid, o)
	}
	if len(invalid) == 0 {
		return nil
	}
	sort.Strings(invalid)
	return &UsageError{Mode: mode, Invalid: invalid}
}

// explicitFlags returns the names of the flags set on the command line.
// pflag's Visit only walks flags whose Changed bit is set.
func explicitFlags(cmd *cobra.Command) []string {
	var names []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	return names
}
