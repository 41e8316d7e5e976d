// Package cli binds command-line flags, environment variables and an
// optional config file to program options.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option
type Opt struct {
	DestP   interface{} // pointer to the destination
	Flag    string
	Default interface{}
	Desc    string

	// Required options must resolve to a non-zero value.
	Required bool
}

// NewOpt creates a new command line option.
func NewOpt(destP interface{}, flag string, dflt interface{}, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute. A nil Run makes the command a
	// parent that only groups subcommands.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Short is the one-line description shown in help.
	Short string
	// Opts are the command line/env var options to the program. They are
	// registered as persistent flags so subcommands inherit them.
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables. If <NAME>_CONFIG_PATH is set, the file it
// names is read as a config file whose keys match the flag names.
//
// Precedence, highest first: flag, env var, config file, default.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:           p.Name,
		Short:         p.Short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if p.Run != nil {
		cmd.Args = cobra.NoArgs
		cmd.RunE = func(_ *cobra.Command, _ []string) error {
			return p.Run()
		}
	}

	prefix := strings.ToUpper(p.Name)
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := BindOptions(v, cmd.PersistentFlags(), p.Opts); err != nil {
		return nil, err
	}

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		if err := readConfigFile(v, prefix); err != nil {
			return err
		}
		return Load(v, c.Flags(), p.Opts)
	}

	return cmd, nil
}

func readConfigFile(v *viper.Viper, prefix string) error {
	v.SetDefault("config-path", "")
	path := v.GetString("config-path")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s (from %s_CONFIG_PATH): %w", path, prefix, err)
	}
	return nil
}

// BindOptions adds opts to the flag set and registers them with viper.
func BindOptions(v *viper.Viper, fs *pflag.FlagSet, opts []Opt) error {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			fs.StringVar(destP, o.Flag, d, o.Desc)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			fs.IntVar(destP, o.Flag, d, o.Desc)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			fs.BoolVar(destP, o.Flag, d, o.Desc)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			fs.DurationVar(destP, o.Flag, d, o.Desc)
		case *zapcore.Level:
			var d zapcore.Level
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			fs.Var(newLevelFlag(destP, d), o.Flag, o.Desc)
		default:
			return fmt.Errorf("unknown destination type %T for flag %q", o.DestP, o.Flag)
		}

		if err := v.BindPFlag(o.Flag, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("bind flag %q: %w", o.Flag, err)
		}
	}
	return nil
}

// Load copies values from viper into the destinations of every option not
// set on the command line, then checks required options.
func Load(v *viper.Viper, fs *pflag.FlagSet, opts []Opt) error {
	for _, o := range opts {
		f := fs.Lookup(o.Flag)
		if f == nil {
			return fmt.Errorf("flag %q is not defined", o.Flag)
		}
		if !f.Changed {
			val := v.Get(o.Flag)
			if val != nil {
				if err := f.Value.Set(fmt.Sprint(val)); err != nil {
					return fmt.Errorf("invalid value %q for %s: %w", fmt.Sprint(val), o.Flag, err)
				}
			}
		}
		if o.Required && f.Value.String() == "" {
			return fmt.Errorf("--%s is required", o.Flag)
		}
	}
	return nil
}
