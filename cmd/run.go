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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/model"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

type RunConfig struct {
	ICFile  string
	OutDir  string
	Restart int    // step of the checkpoint to continue from, negative to start from scratch
	Profile string // cpu, mem or empty
	// Closing Stop ends the run after the current step with a checkpoint
	Stop <-chan struct{}
}

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from an input file",
	Long: `
Creates the initial state, or loads the checkpoint of step --restart, and
integrates until the end time. Every rank of the process grid runs in this
process. A checkpoint is written at the end of the run.

microhh run -I case.yaml -o out --restart 3600`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			rc = &RunConfig{
				OutDir:  viper.GetString("outdir"),
				Restart: viper.GetInt("restart"),
				Profile: viper.GetString("profile"),
			}
			ip *InputParameters.LESParameters
		)
		rc.ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		if ip, err = readInput(rc.ICFile); err != nil {
			return
		}
		if rc.OutDir, err = expandPath(rc.OutDir); err != nil {
			return
		}
		if err = os.MkdirAll(rc.OutDir, 0o755); err != nil {
			return
		}
		switch rc.Profile {
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(rc.OutDir), profile.NoShutdownHook).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(rc.OutDir), profile.NoShutdownHook).Stop()
		case "":
		default:
			return fmt.Errorf("unknown profile mode %q, use cpu or mem", rc.Profile)
		}
		// An interrupt is only looked at between steps, the collectives keep
		// running on a context that is never cancelled
		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		rc.Stop = sigCtx.Done()
		return Run(context.Background(), ip, rc, logrus.StandardLogger())
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with the model parameters")
	RunCmd.Flags().IntP("restart", "r", -1, "continue from the checkpoint written after this step")
	RunCmd.Flags().String("profile", "", "write a cpu or mem profile into the output directory")
	viper.BindPFlag("restart", RunCmd.Flags().Lookup("restart"))
	viper.BindPFlag("profile", RunCmd.Flags().Lookup("profile"))
}

// Run executes the simulation on NPX x NPY in-process ranks
func Run(ctx context.Context, ip *InputParameters.LESParameters, rc *RunConfig, log logrus.FieldLogger) error {
	w := parallel.NewLocalWorld(ip.MPI.NPX * ip.MPI.NPY)
	return w.Run(ctx, func(ctx context.Context, comm parallel.Communicator) error {
		return runRank(ctx, ip, rc, comm, log)
	})
}

func runRank(ctx context.Context, ip *InputParameters.LESParameters, rc *RunConfig,
	comm parallel.Communicator, log logrus.FieldLogger) (err error) {
	var m *model.Model
	opts := []model.Option{model.WithLogger(log), model.WithOutputDir(rc.OutDir)}
	if rc.Stop != nil {
		opts = append(opts, model.WithStop(rc.Stop))
	}
	if m, err = model.New(ip, comm, opts...); err != nil {
		return
	}
	defer m.Close()
	if err = m.Init(ctx); err != nil {
		return
	}
	if rc.Restart >= 0 {
		err = m.LoadCheckpoint(ctx, rc.Restart)
	} else {
		err = m.Create(ctx)
	}
	if err != nil {
		return
	}
	if err = m.Exec(ctx); err != nil && !errors.Is(err, types.ErrInterrupted) {
		return
	}
	if _, serr := m.SaveCheckpoint(ctx); serr != nil {
		return serr
	}
	return
}
