// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/FlowsheetLocal/pkg/logging"
	flowsheet "github.com/AleutianAI/FlowsheetLocal/services/flowsheet"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/diagnostics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a flowsheet diagram on a local port",
	Long: `Loads a flowsheet document from a JSON file and serves the
interactive diagram until interrupted. Layout edits made in the browser
are merged with the loaded model and saved back to disk.

All flags can also be set through FLOWVIS_* environment variables,
e.g. FLOWVIS_PORT=8080 or FLOWVIS_SAVE_DIR=/tmp/flowsheets.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("name", "", "Flowsheet name (required)")
	serveCmd.Flags().String("from", "", "Path to a flowsheet JSON document to serve")
	serveCmd.Flags().Int("port", 0, "Port to listen on (0 picks a free port)")
	serveCmd.Flags().String("save", "", "Save file path (default <name>.json under --save-dir)")
	serveCmd.Flags().String("save-dir", "", "Directory for save files (default current directory)")
	serveCmd.Flags().Bool("no-save", false, "Disable saving entirely (memory-only store)")
	serveCmd.Flags().Bool("overwrite", false, "Overwrite an existing save file instead of versioning")
	serveCmd.Flags().Bool("load-from-saved", true, "Reuse an existing save file instead of creating a new version")
	serveCmd.Flags().Int("max-versions", 100, "Maximum numbered save versions to create (0 = unlimited)")
	serveCmd.Flags().Int("save-interval", 5000, "UI save check interval in milliseconds")
	serveCmd.Flags().String("backend", "file", "Storage backend: file or badger")
	serveCmd.Flags().Bool("quiet", false, "Suppress startup output")
	serveCmd.Flags().String("log-dir", "", "Also write JSON logs to this directory")
	serveCmd.Flags().Bool("verbose", false, "Enable debug logging")
	_ = serveCmd.MarkFlagRequired("name")
}

func serveViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FLOWVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
	return v
}

func runServe(cmd *cobra.Command, args []string) {
	v := serveViper(cmd)

	level := logging.LevelInfo
	if v.GetBool("verbose") {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  v.GetString("log-dir"),
		Service: "flowvis",
		Quiet:   v.GetBool("quiet"),
	})
	defer logger.Close()

	doc := datatypes.Document{}
	if from := v.GetString("from"); from != "" {
		raw, err := os.ReadFile(from)
		if err != nil {
			log.Fatalf("Error reading flowsheet file: %v", err)
		}
		doc, err = datatypes.ParseDocument(raw)
		if err != nil {
			log.Fatalf("Error parsing flowsheet file %s: %v", from, err)
		}
	}

	opts := flowsheet.DefaultOptions(v.GetString("name"))
	opts.Save = v.GetString("save")
	opts.SaveDir = v.GetString("save-dir")
	opts.SaveDisabled = v.GetBool("no-save")
	opts.Overwrite = v.GetBool("overwrite")
	opts.LoadFromSaved = v.GetBool("load-from-saved")
	opts.MaxSavedVersions = v.GetInt("max-versions")
	opts.SaveTimeIntervalMs = v.GetInt("save-interval")
	opts.Port = v.GetInt("port")
	opts.Backend = v.GetString("backend")
	opts.Quiet = v.GetBool("quiet")
	opts.Logger = logger.Slog()
	opts.Diagnostics = defaultDiagnostics()

	result, err := flowsheet.Visualize(doc, opts)
	if err != nil {
		log.Fatalf("Error starting flowsheet server: %v", err)
	}
	if !opts.Quiet {
		fmt.Printf("Flowsheet %q available at %s\n", result.ID, result.URL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down flowsheet server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := result.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// defaultDiagnostics registers the built-in read-only operations exposed
// through /diagnostics and /run_diagnostic.
func defaultDiagnostics() *diagnostics.Registry {
	reg := diagnostics.NewRegistry()
	reg.Register("model_summary", func(ctx context.Context, model any, w io.Writer) error {
		doc, ok := model.(datatypes.Document)
		if !ok {
			if m, isMap := model.(map[string]any); isMap {
				doc = datatypes.Document(m)
			} else {
				return fmt.Errorf("model is not a document (got %T)", model)
			}
		}
		keys := doc.Keys()
		fmt.Fprintf(w, "top-level sections: %d\n", len(keys))
		for _, k := range keys {
			switch val := doc[k].(type) {
			case map[string]any:
				names := make([]string, 0, len(val))
				for name := range val {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(w, "  %s: %d entries\n", k, len(names))
			case []any:
				fmt.Fprintf(w, "  %s: %d items\n", k, len(val))
			default:
				fmt.Fprintf(w, "  %s\n", k)
			}
		}
		return nil
	})
	return reg
}
