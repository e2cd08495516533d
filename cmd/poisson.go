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
	"github.com/notargets/goshape/model_problems/Poisson"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// PoissonCmd represents the poisson command
var PoissonCmd = &cobra.Command{
	Use:   "poisson",
	Short: "Deform a domain so its Poisson solution tracks a target",
	Long: `
Solves -Δu = 4 with u = 0 on the boundary and deforms the whole domain to
minimize ∫ (u - u_t)² dx, u_t = 0.36 - (x-0.5)² - (y-0.5)², using an
unconstrained L-BFGS line search in the elasticity metric.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg := Poisson.NewConfig()
		cfg.MeshFile, _ = cmd.Flags().GetString("gridFile")
		cfg.N, _ = cmd.Flags().GetInt("n")
		cfg.TracePath = viper.GetString("trace")
		if cfg.Params, err = optimizerParameters(); err != nil {
			return
		}
		m, err := cfg.Mesh()
		if err != nil {
			return
		}
		p, err := Poisson.Setup(m, cfg, logger)
		if err != nil {
			return
		}
		rep, err := p.Run()
		if err != nil {
			return
		}
		rep.Print()
		return
	},
}

func init() {
	rootCmd.AddCommand(PoissonCmd)
	PoissonCmd.Flags().StringP("gridFile", "F", "", "gmsh 2.2 triangle mesh; the unit square is generated when empty")
	PoissonCmd.Flags().IntP("n", "n", Poisson.NewConfig().N, "cells per side of the generated unit square")
}
