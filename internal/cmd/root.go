package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sszokoly/sbctail/internal/output"
	"github.com/sszokoly/sbctail/internal/parser"
)

var (
	cfgFile   string
	outputFmt string
	methods   string
	ignoreFNU bool
	verbose   bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "sbctail",
	Short: "sbctail — SBCE trace log tailer",
	Long: `sbctail extracts SIP messages from rotating tracesbc_sip log files.
It follows the live trace file across rotations or replays a bounded set of
historical (optionally gzip/bzip2 compressed) files, parses the message
headers and streams the results to the terminal or a websocket client.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.sbctail.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().StringVarP(&methods, "methods", "m", "", "only emit these SIP methods (comma-separated, e.g. INVITE,BYE)")
	rootCmd.PersistentFlags().BoolVar(&ignoreFNU, "ignore-fnu", false, "suppress off-hook/ec500 feature-notification requests")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print full message bodies")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".sbctail")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SBCTAIL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// newParser builds the record parser from the filter flags.
func newParser() *parser.Parser {
	var allow []string
	if methods != "" {
		for _, m := range strings.Split(methods, ",") {
			if m = strings.TrimSpace(m); m != "" {
				allow = append(allow, m)
			}
		}
	}
	return parser.New(allow, ignoreFNU)
}

// newRenderer picks the output renderer from the --output flag.
func newRenderer() output.Renderer {
	switch strings.ToLower(outputFmt) {
	case "json":
		return output.NewJSONRenderer()
	default:
		return output.NewTextRenderer(verbose)
	}
}
