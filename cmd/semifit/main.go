/*
 * main.go, part of semifit.
 *
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 *
 * Gochem is developed at the laboratory for instruction in Swedish, Department of Chemistry,
 * University of Helsinki, Finland.
 *
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

//semifit fits the parameters of a semi-empirical method to reference energies.
//
//Usage:
//
//	semifit [flags] loss|fit|sample|cv
//
//Every flag can also be given in a YAML configuration file (--config) or in
//SEMIFIT_* environment variables. Flags take precedence over the environment, and
//the environment over the file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

//run executes the command line in args and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "semifit:", err)
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	A := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "semifit",
		Short:         "Fit semi-empirical parameters to reference energies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&A.cfgFile, "config", "", "YAML configuration file")
	A.addFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "loss",
		Short: "Print the loss of the start parameters",
		Args:  cobra.NoArgs,
		RunE:  A.command("loss", A.loss),
	})
	root.AddCommand(&cobra.Command{
		Use:   "fit",
		Short: "Minimize the loss with L-BFGS and write the fitted parameters",
		Args:  cobra.NoArgs,
		RunE:  A.command("fit", A.fit),
	})
	root.AddCommand(&cobra.Command{
		Use:   "sample",
		Short: "Sample parameters from exp(-loss) with NUTS and write the chain",
		Args:  cobra.NoArgs,
		RunE:  A.command("sample", A.sample),
	})
	root.AddCommand(&cobra.Command{
		Use:   "cv",
		Short: "Cross-validate the fit",
		Args:  cobra.NoArgs,
		RunE:  A.command("cv", A.crossValidate),
	})
	return root
}
