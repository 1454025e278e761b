// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zerotier/vl1core/cmd/vl1node/server"
	"github.com/zerotier/vl1core/config"
	"github.com/zerotier/vl1core/internal/cmdutil"
	"github.com/zerotier/vl1core/internal/logutil"
	"github.com/zerotier/vl1core/version"
	"go.uber.org/zap"
)

func main() {
	var (
		cfgPath  string
		examples = cmdutil.Examples{
			{
				Example: "vl1node -c /path/to/config.yaml",
				Comment: "Start a node using the given configuration file",
			},
			{
				Example: "vl1node --version",
				Comment: "Print the version of vl1node",
			},
		}
	)

	rootCmd := &cobra.Command{
		Use: fmt.Sprintf("vl1node -c %s [flags]", cmdutil.Underline("<CONFIG>")),
		Long: fmt.Sprintf(`vl1node runs a standalone VL1 peer-to-peer packet engine node.

- The parameter '-c %[1]s' or '--config %[1]s' is required. A missing config
  file is populated with a freshly generated node identity on first run.
`,
			cmdutil.Underline("<CONFIG>")),
		Example:       examples.String(),
		Version:       version.NewVersion().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			logutil.InitLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return cmd.Help()
			}

			cfg, err := config.FromPath(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())

			go func() {
				sc := make(chan os.Signal, 1)
				signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
				sg := <-sc
				zap.L().Info("The node is terminating due to signal", zap.Stringer("signal", sg))
				cancel()
			}()

			var wg sync.WaitGroup
			if err := server.Serve(ctx, &wg, cfg); err != nil {
				zap.L().Error("Serve vl1 node failed", zap.Error(err))
			}

			cancel()
			wg.Wait()
			zap.L().Info("See you again, bye!")

			return nil
		},
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Specify the path of configuration file")
	cmdutil.Run(rootCmd)
}
