// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set by main from the release ldflags.
var Version = "dev"

var (
	cfgFile       string
	tokenizersDir string
)

var rootCmd = &cobra.Command{
	Use:   "textgen",
	Short: "Text generation service",
	Long: `textgen serves a pretrained causal language model over HTTP.

POST /generate continues a prompt and GET /history lists past generations.
Settings come from flags, TEXTGEN_* environment variables, or textgen.yaml.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./textgen.yaml or ~/.textgen/textgen.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-style", "terminal", "log style (terminal, json, noop)")
	pf.String("api-url", "http://localhost:5000", "textgen API URL")
	pf.String("auth-secret", "", "shared secret for the Authorization: Bearer=<secret> header")
	pf.StringVar(&tokenizersDir, "tokenizers-dir", defaultTokenizersDir(), "directory for downloaded tokenizers")

	mustBindPFlag("log.level", pf.Lookup("log-level"))
	mustBindPFlag("log.style", pf.Lookup("log-style"))
	mustBindPFlag("api_url", pf.Lookup("api-url"))
	mustBindPFlag("auth.secret", pf.Lookup("auth-secret"))
	mustBindPFlag("tokenizers_dir", pf.Lookup("tokenizers-dir"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("textgen")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".textgen"))
		}
	}

	viper.SetEnvPrefix("TEXTGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	if dir := viper.GetString("tokenizers_dir"); dir != "" {
		tokenizersDir = dir
	}
}

func defaultTokenizersDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".textgen", "tokenizers")
	}
	return filepath.Join(home, ".textgen", "tokenizers")
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", key, err))
	}
}
