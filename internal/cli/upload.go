package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/history"
	"github.com/kumasuke/remedy/internal/identity"
	"github.com/kumasuke/remedy/internal/poll"
	"github.com/kumasuke/remedy/internal/quota"
	"github.com/kumasuke/remedy/internal/storage"
	"github.com/kumasuke/remedy/internal/upload"
)

var (
	uploadFormat string
	uploadUser   string
	noWait       bool
)

// NewUploadCmd creates the upload command.
func NewUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for remediation",
		Long:  "Upload a document to the remediation pipeline, wait for the result and print a download URL.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&uploadFormat, "format", "f", "pdf", "output format (pdf, html)")
	cmd.Flags().StringVarP(&uploadUser, "user", "u", "", "user identifier for quota and key derivation")
	cmd.Flags().StringVar(&authToken, "token", "", "identity provider token (or REMEDY_AUTH_TOKEN)")
	cmd.Flags().StringVar(&mode, "mode", "", "client mode (strict, demo)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "skip waiting for the remediation result")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	user, err := resolveSubject(uploadUser, authToken, cfg.Demo())
	if err != nil {
		return err
	}

	// Mirror the server's limits for local validation when reachable.
	var limits upload.Limits
	if a.quotaGate != nil {
		if state, qerr := a.quotaGate.Check(ctx, user, authToken); qerr == nil {
			limits = upload.Limits{MaxSizeMB: state.MaxSizeAllowedMB, MaxPages: state.MaxPagesAllowed}
		}
	}

	req := &upload.Request{
		FileName:       filepath.Base(path),
		Content:        f,
		Size:           info.Size(),
		ContentType:    "application/pdf",
		Format:         uploadFormat,
		UserSubject:    user,
		UserIdentifier: user,
		AuthToken:      authToken,
		Limits:         limits,
		Progress: func(percent int) {
			log.Debug().Int("percent", percent).Msg("uploading")
		},
	}

	result, err := a.coordinator.Upload(ctx, req)
	if result != nil && result.Job != nil {
		if herr := store.Record(ctx, result.Job); herr != nil {
			log.Warn().Err(herr).Msg("failed to record job history")
		}
	}
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return fmt.Errorf("upload limit reached; no file was uploaded")
		}
		return err
	}

	fmt.Printf("Uploaded %s as %s\n", req.FileName, result.Key)
	if result.Job.Mock {
		fmt.Println("Note: storage was unreachable, the upload was simulated")
	}
	if a.quotaGate != nil {
		if state, qerr := a.quotaGate.Check(ctx, user, authToken); qerr == nil {
			fmt.Printf("Uploads used: %d of %d\n", state.CurrentUsage, state.MaxFilesAllowed)
		}
	}

	if noWait {
		return nil
	}

	return waitAndIssue(ctx, cancel, a, store, result.Job)
}

// resolveSubject picks the quota subject: the --user flag when given,
// otherwise the token's sub claim. Strict mode refuses to proceed
// without one; the quota endpoint rejects an empty subject anyway, and
// failing here keeps the error actionable and pre-network.
func resolveSubject(flagUser, token string, demo bool) (string, error) {
	if flagUser != "" {
		return flagUser, nil
	}
	if token != "" {
		sub, err := identity.TokenSubject(token)
		if err == nil {
			return sub, nil
		}
		log.Debug().Err(err).Msg("could not read subject from token")
	}
	if demo {
		return "", nil
	}
	return "", fmt.Errorf("no user subject available; pass --user or provide a token with a sub claim")
}

// waitAndIssue polls for the remediation result, records the outcome
// and prints a download URL on success. SIGINT cancels the session.
func waitAndIssue(ctx context.Context, cancel context.CancelFunc, a *app, store *history.Store, job *upload.Job) error {
	outcome := make(chan error, 1)
	var found *storage.ObjectInfo

	session, err := a.poller.Start(ctx, job, poll.Handlers{
		OnStatus: func(status string) {
			log.Info().Str("status", status).Msg("waiting for remediation result")
		},
		OnComplete: func(info *storage.ObjectInfo) {
			found = info
			outcome <- nil
		},
		OnError: func(err error) {
			outcome <- err
		},
	})
	if err != nil {
		return err
	}
	if herr := store.UpdateStatus(ctx, job.ID, job.Status, job.Mock); herr != nil {
		log.Warn().Err(herr).Msg("failed to record job history")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("cancelling polling session")
		cancel()
		session.Stop()
		return fmt.Errorf("cancelled")
	case err = <-outcome:
	}

	if herr := store.UpdateStatus(ctx, job.ID, job.Status, job.Mock); herr != nil {
		log.Warn().Err(herr).Msg("failed to record job history")
	}
	if err != nil {
		var timeout *poll.TimeoutError
		if errors.As(err, &timeout) {
			return fmt.Errorf("the remediation pipeline did not produce a result in time: %w", err)
		}
		return err
	}

	cfg, err := a.registry.Get(job.Format)
	if err != nil {
		return err
	}
	outputKey := bucket.OutputKey(cfg, bucket.BaseName(job.StorageKey))
	downloadName := bucket.DownloadFileName(cfg, job.OriginalFileName)

	if found != nil && found.Mock {
		fmt.Println("Remediation complete (simulated)")
	} else {
		fmt.Println("Remediation complete")
	}

	ttl := time.Duration(a.cfg.Download.TTLSeconds) * time.Second
	grant, err := a.issuer.Issue(ctx, job.Format, outputKey, downloadName, ttl)
	if err != nil {
		return err
	}

	fmt.Printf("Download %s:\n%s\n", grant.FileName, grant.URL)
	fmt.Printf("Link expires at %s\n", grant.ExpiresAt.Format(time.RFC3339))
	return nil
}
