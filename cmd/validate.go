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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
)

// ValidateCmd checks an input file without running it
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check an input file and print the resolved parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		ip, err := readInput(icFile)
		if err != nil {
			return err
		}
		return validate(ip, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(ValidateCmd)
	ValidateCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with the model parameters")
}

func validate(ip *InputParameters.LESParameters, w io.Writer) (err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	sch, err := ip.Schemes()
	if err != nil {
		return
	}
	ip.Print(w)
	fmt.Fprintf(w, "[%s]\t= Schemes\n", sch.String())
	fmt.Fprintf(w, "[%d]\t\t\t\t= Halo Width\n", sch.Advec.HaloWidth())
	return
}

func readInput(icFile string) (ip *InputParameters.LESParameters, err error) {
	if len(icFile) == 0 {
		exampleFile := `
########################################
Title: "Convective boundary layer"
Grid:
  itot: 64
  jtot: 64
  ktot: 64
  xsize: 6400
  ysize: 6400
  zsize: 3200
MPI:
  npx: 2
  npy: 2
Advec:
  swadvec: "2i4"
Thermo:
  swthermo: "dry"
Fields:
  rndamp: 0.1
  rndz: 400
Time:
  endtime: 3600
########################################
`
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile), example:%s", exampleFile)
	}
	if icFile, err = expandPath(icFile); err != nil {
		return
	}
	var f *os.File
	if f, err = os.Open(icFile); err != nil {
		return
	}
	defer f.Close()
	return InputParameters.ReadLESParameters(f)
}
