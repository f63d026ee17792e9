package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/updater"
	"github.com/smazurov/audionode/internal/version"
)

// VersionData is the build information payload.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit,omitempty" doc:"Git commit hash"`
	BuildDate string `json:"build_date,omitempty" doc:"Build timestamp"`
	GoVersion string `json:"go_version,omitempty" doc:"Go toolchain version"`
	Platform  string `json:"platform,omitempty" example:"linux/arm64" doc:"Target platform"`
}

// UpdateCheckData reports whether a newer release exists.
type UpdateCheckData struct {
	CurrentVersion  string `json:"current_version" doc:"Running version"`
	LatestVersion   string `json:"latest_version" doc:"Latest published version"`
	ReleaseNotes    string `json:"release_notes,omitempty" doc:"Release notes of the latest version"`
	ReleaseURL      string `json:"release_url,omitempty" doc:"Release page URL"`
	PublishedAt     string `json:"published_at,omitempty" doc:"Release publish time"`
	AssetSize       int    `json:"asset_size,omitempty" doc:"Download size in bytes"`
	UpdateAvailable bool   `json:"update_available" doc:"Whether an update can be applied"`
}

// UpdateStatusData is the updater's state machine snapshot.
type UpdateStatusData struct {
	State           string `json:"state" example:"idle" doc:"Updater state"`
	CurrentVersion  string `json:"current_version" doc:"Running version"`
	TargetVersion   string `json:"target_version,omitempty" doc:"Version being applied"`
	Progress        int    `json:"progress,omitempty" doc:"Download progress percent"`
	Error           string `json:"error,omitempty" doc:"Last error"`
	LastChecked     string `json:"last_checked,omitempty" doc:"Time of the last check"`
	BackupAvailable bool   `json:"backup_available" doc:"Whether a rollback binary exists"`
	BackupVersion   string `json:"backup_version,omitempty" doc:"Version of the backup binary"`
}

// MessageData is a plain status message payload.
type MessageData struct {
	Message string `json:"message" example:"Update applied, restarting..." doc:"Status message"`
}

// registerUpdateRoutes registers self-update endpoints.
func (s *Server) registerUpdateRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/update/version",
		Summary:     "Version",
		Description: "Get application build information",
		Tags:        []string{"update"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*Response[VersionData], error) {
		info := version.Get()
		return respond(VersionData{
			Version:   info.Version,
			GitCommit: info.GitCommit,
			BuildDate: info.BuildDate,
			GoVersion: info.GoVersion,
			Platform:  info.Platform,
		}), nil
	})

	svc := s.options.UpdateService
	if svc == nil {
		return
	}
	if !svc.IsEnabled() {
		s.registerDisabledUpdateRoutes(svc.DisabledReason())
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodPost,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Check whether a newer version is available without downloading",
		Tags:        []string{"update"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[UpdateCheckData], error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		data := UpdateCheckData{
			CurrentVersion:  info.CurrentVersion,
			LatestVersion:   info.LatestVersion,
			ReleaseNotes:    info.ReleaseNotes,
			ReleaseURL:      info.ReleaseURL,
			AssetSize:       info.AssetSize,
			UpdateAvailable: info.UpdateAvailable,
		}
		if !info.PublishedAt.IsZero() {
			data.PublishedAt = info.PublishedAt.UTC().Format(time.RFC3339)
		}
		return respond(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Get the current update state and progress",
		Tags:        []string{"update"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[UpdateStatusData], error) {
		status := svc.GetStatus(ctx)
		data := UpdateStatusData{
			State:           string(status.State),
			CurrentVersion:  status.CurrentVersion,
			TargetVersion:   status.TargetVersion,
			Progress:        status.Progress,
			Error:           status.Error,
			BackupAvailable: status.BackupAvailable,
			BackupVersion:   status.BackupVersion,
		}
		if status.LastChecked != nil {
			data.LastChecked = status.LastChecked.UTC().Format(time.RFC3339)
		}
		return respond(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and apply the available update. Triggers a restart.",
		Tags:        []string{"update"},
		Errors:      []int{400, 401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[MessageData], error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return respond(MessageData{Message: "Update applied, restarting..."}), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Revert to the previously backed up version. Triggers a restart.",
		Tags:        []string{"update"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[MessageData], error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return respond(MessageData{Message: "Rollback complete, restarting..."}), nil
	})
}

// registerDisabledUpdateRoutes keeps the update paths present but
// answering 503 when the binary location is not writable.
func (s *Server) registerDisabledUpdateRoutes(reason string) {
	disabledHandler := func(_ context.Context, _ *struct{}) (*Response[struct{}], error) {
		return nil, newErrorEnvelope(http.StatusServiceUnavailable, "generic",
			"Update service disabled", reason)
	}

	for _, op := range []struct {
		id, method, path, summary string
	}{
		{"check-updates", http.MethodPost, "/api/update/check", "Check for Updates"},
		{"get-update-status", http.MethodGet, "/api/update/status", "Get Update Status"},
		{"apply-update", http.MethodPost, "/api/update/apply", "Apply Update"},
		{"rollback-update", http.MethodPost, "/api/update/rollback", "Rollback Update"},
	} {
		huma.Register(s.api, huma.Operation{
			OperationID: op.id,
			Method:      op.method,
			Path:        op.path,
			Summary:     op.summary,
			Description: op.summary + " (disabled)",
			Tags:        []string{"update"},
			Errors:      []int{503},
			Security:    withAuth(),
		}, disabledHandler)
	}
}

// mapUpdateError converts updater errors to the envelope.
func mapUpdateError(err error) error {
	var updateErr *updater.Error
	if errors.As(err, &updateErr) {
		status := http.StatusInternalServerError
		switch updateErr.Code {
		case updater.ErrCodeInvalidState:
			status = http.StatusConflict
		case updater.ErrCodeNoUpdate:
			status = http.StatusBadRequest
		case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
			status = http.StatusNotFound
		case updater.ErrCodeDisabled:
			status = http.StatusServiceUnavailable
		}
		return newErrorEnvelope(status, defaultCategory(status),
			"Update operation failed", updateErr.Message)
	}
	return newErrorEnvelope(http.StatusInternalServerError, "generic",
		"Update operation failed", err.Error())
}
