/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/redline-team/redline/internal/version"
)

type versionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Redline",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version.Version,
				BuildDate: version.BuildDate,
				GoVersion: runtime.Version(),
			}

			switch output {
			case "":
				cmd.Printf("Version: %s\n", info.Version)
				cmd.Printf("Build date: %s\n", info.BuildDate)
				cmd.Printf("Go version: %s\n", info.GoVersion)
			case "json":
				jsonOutput, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal JSON: %w", err)
				}
				cmd.Println(string(jsonOutput))
			default:
				return errInvalidOutputOpt
			}

			return nil
		},
	}
}

func init() {
	cmd := newVersionCmd()
	cmd.Flags().StringVarP(
		&output,
		"output",
		"o",
		"",
		"One of 'json', or empty for plain text",
	)

	rootCmd.AddCommand(cmd)
}
