/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/notargets/goshape/InputParameters"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	logger  *zap.Logger
	prof    interface{ Stop() }
)

var rootCmd = &cobra.Command{
	Use:   "goshape",
	Short: "PDE constrained shape optimization",
	Long: `
Deforms finite element meshes to minimize functionals of PDE solutions,
goshape pipe    - energy dissipation of a Navier-Stokes pipe flow at fixed volume
goshape poisson - L2 tracking of a Poisson solution`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		config := zap.NewProductionConfig()
		if viper.GetBool("verbose") {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if logger, err = config.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logger.With(zap.String("session", uuid.NewString()))
		if viper.GetBool("profile") {
			prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet)
		}
		return
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// execute runs the command line and releases the profile and the logger,
// also when the command fails
func execute(args []string) error {
	defer cleanup()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func cleanup() {
	if prof != nil {
		prof.Stop()
		prof = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.goshape.yaml)")
	flags.BoolP("verbose", "v", false, "debug logging, including every line search iteration")
	flags.Bool("profile", false, "write a CPU profile to the working directory")
	flags.StringP("params", "P", "", "YAML optimizer parameter file, option names as in ROL")
	flags.StringP("trace", "t", "", "ParaView collection (.pvd) receiving the state after every solve")
	for _, name := range []string{"verbose", "profile", "params", "trace"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".goshape")
	}
	viper.SetEnvPrefix("goshape")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// optimizerParameters reads --params, nil leaves the problem defaults
func optimizerParameters() (params *InputParameters.Parameters, err error) {
	path := viper.GetString("params")
	if path == "" {
		return
	}
	if params, err = InputParameters.ReadParameterFile(path); err != nil {
		return nil, err
	}
	if viper.GetBool("verbose") {
		params.Print()
	}
	return
}
