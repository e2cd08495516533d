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
	"github.com/notargets/goshape/model_problems/Pipe"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// PipeCmd represents the pipe command
var PipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Minimize the dissipation of a pipe flow at constant volume",
	Long: `
Solves the steady Navier-Stokes equations in an S-bend pipe and deforms the
free walls (tag 13) to minimize the dissipated energy, keeping the volume by an
augmented Lagrangian. Inflow (10), outflow (11) and fixed walls (12) stay put.
Prints the absolute and relative volume drift of the final shape.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg := Pipe.NewConfig()
		cfg.MeshFile, _ = cmd.Flags().GetString("gridFile")
		cfg.Dim, _ = cmd.Flags().GetInt("dim")
		cfg.Nx, _ = cmd.Flags().GetInt("nx")
		cfg.Ny, _ = cmd.Flags().GetInt("ny")
		cfg.Nz, _ = cmd.Flags().GetInt("nz")
		cfg.Viscosity, _ = cmd.Flags().GetFloat64("viscosity")
		cfg.TracePath = viper.GetString("trace")
		if cfg.Params, err = optimizerParameters(); err != nil {
			return
		}
		m, err := cfg.Mesh()
		if err != nil {
			return
		}
		p, err := Pipe.Setup(m, cfg, logger)
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
	rootCmd.AddCommand(PipeCmd)
	cfg := Pipe.NewConfig()
	PipeCmd.Flags().StringP("gridFile", "F", "", "gmsh 2.2 pipe mesh, tags 10-13; generated when empty")
	PipeCmd.Flags().IntP("dim", "d", cfg.Dim, "dimension of the generated pipe")
	PipeCmd.Flags().Int("nx", cfg.Nx, "generated cells along the pipe")
	PipeCmd.Flags().Int("ny", cfg.Ny, "generated cells across the pipe")
	PipeCmd.Flags().Int("nz", cfg.Nz, "generated cells in depth, 3D only")
	PipeCmd.Flags().Float64("viscosity", 0, "viscosity, 0 uses 1/400 in 2D and 1/10 in 3D")
}
