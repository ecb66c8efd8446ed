package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/sciencesync/internal/export"
	"github.com/TobiSchelling/sciencesync/internal/pipeline"
	"github.com/TobiSchelling/sciencesync/internal/server"
)

// --- export command ---

var (
	exportRunID  string
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the groups of a clustering run (csv, markdown, html, pdf)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, view, err := pipeline.LoadView(db, exportRunID)
		if err != nil {
			return fmt.Errorf("loading run: %w", err)
		}
		doc := export.Document{Title: "Citation digest " + run.CreatedAt.Format("2006-01-02"), View: view}

		if exportOutput == "" || exportOutput == "-" {
			return export.Write(os.Stdout, format, doc)
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		if err := export.Write(f, format, doc); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Exported run %s to %s\n", run.ID, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Run ID (default: latest)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "csv, markdown, html or pdf")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		addr := fmt.Sprintf(":%d", port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      server.New(db, log).Handler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting HTTP server", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		fmt.Printf("Serving at http://localhost:%d (Ctrl+C to stop)\n", port)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
