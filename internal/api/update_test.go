package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/smazurov/audionode/internal/updater"
)

func TestMapUpdateErrorStatuses(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{updater.ErrCodeInvalidState, http.StatusConflict},
		{updater.ErrCodeNoUpdate, http.StatusBadRequest},
		{updater.ErrCodeNotFound, http.StatusNotFound},
		{updater.ErrCodeNoBackup, http.StatusNotFound},
		{updater.ErrCodeDisabled, http.StatusServiceUnavailable},
		{updater.ErrCodeApplyFailed, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := mapUpdateError(&updater.Error{Code: tc.code, Message: "boom"})
			var env *ErrorEnvelope
			if !errors.As(err, &env) {
				t.Fatalf("mapUpdateError returned %T, want *ErrorEnvelope", err)
			}
			if env.GetStatus() != tc.want {
				t.Errorf("status = %d, want %d", env.GetStatus(), tc.want)
			}
		})
	}
}
