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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/redline-team/redline/api/types"
)

var (
	adminAddr string
	output    string
)

var errInvalidOutputOpt = errors.New("output must be one of 'json', or empty")

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage live synchronization sessions",
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the live sessions on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := fetchSessions(adminAddr)
			if err != nil {
				return err
			}

			return printSessions(cmd, output, summaries)
		},
	}
}

func fetchSessions(addr string) ([]types.SessionSummary, error) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(fmt.Sprintf("http://%s/admin/sessions", addr))
	if err != nil {
		return nil, fmt.Errorf("fetch sessions: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sessions: status %d", resp.StatusCode)
	}

	var summaries []types.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return summaries, nil
}

func printSessions(cmd *cobra.Command, output string, summaries []types.SessionSummary) error {
	switch output {
	case "":
		tw := table.NewWriter()
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateFooter = false
		tw.Style().Options.SeparateHeader = false
		tw.Style().Options.SeparateRows = false
		tw.AppendHeader(table.Row{
			"DOCUMENT",
			"CONNECTIONS",
			"LENGTH",
			"DIRTY",
			"LAST ACTIVE",
		})
		for _, summary := range summaries {
			tw.AppendRow(table.Row{
				summary.DocumentID,
				summary.Connections,
				summary.ContentLen,
				summary.Dirty,
				humanDuration(time.Now().UTC().Sub(summary.LastActive)),
			})
		}
		cmd.Printf("%s\n", tw.Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	default:
		return errInvalidOutputOpt
	}

	return nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
}

func init() {
	cmd := newSessionsListCmd()
	cmd.Flags().StringVarP(
		&output,
		"output",
		"o",
		"",
		"One of 'json', or empty for a table",
	)

	sessionsCmd.AddCommand(cmd)
	rootCmd.AddCommand(sessionsCmd)
}
