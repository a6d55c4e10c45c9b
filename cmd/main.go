/*
Copyright 2025 Inkpreview Authors.

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

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/inkpreview/inkpreview"
	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/database"
	"github.com/inkpreview/inkpreview/gateway"
	"github.com/inkpreview/inkpreview/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Inkpreview represents the CLI application, encapsulating the root Cobra command.
type Inkpreview struct {
	cmd *cobra.Command
}

// inkpreviewInstance holds the service instance and its configuration so
// subcommands share one initialized stack.
type inkpreviewInstance struct {
	service *inkpreview.InkPreview
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service instance before
// running any command.
func preRun(app *inkpreviewInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("inkpreview.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		svc, err := setupInkpreview(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.service = svc
		app.cnf = cnf

		return nil
	}
}

// setupInkpreview wires the data source and the prediction provider into a
// service instance for the current configuration.
func setupInkpreview(cfg *config.Configuration) (*inkpreview.InkPreview, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	svc, err := inkpreview.New(db, gateway.NewReplicateClient(cfg))
	if err != nil {
		return nil, fmt.Errorf("error creating inkpreview: %v", err)
	}
	return svc, nil
}

// NewCLI creates the command-line interface for the Inkpreview application.
func NewCLI() *Inkpreview {
	var configFile string
	b := &inkpreviewInstance{}

	var rootCmd = &cobra.Command{
		Use:   "inkpreview",
		Short: "Tattoo preview pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./inkpreview.json", "Configuration file for the inkpreview server")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Inkpreview{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Inkpreview) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
